/*
handlers.go - HTTP API handlers for the benefits administration system

PURPOSE:
  Exposes the rate-resolution and enrollment engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Groups:
    GET    /api/groups                     List all groups
    POST   /api/groups                     Create group
    GET    /api/groups/{id}                Get group details
    GET    /api/groups/{id}/participants   List group participants
    GET    /api/groups/{id}/plans          List group plans

  Participants:
    POST   /api/participants                    Create participant
    GET    /api/participants/{id}               Get participant
    GET    /api/participants/{id}/dependents    List dependents
    POST   /api/participants/{id}/dependents    Add dependent (may extend enrollments)
    GET    /api/participants/{id}/enrollments   List enrollments
    POST   /api/participants/{id}/enrollments   Enroll in a plan

  Plans:
    GET    /api/plans                    List plans (?group_id=, ?family=)
    POST   /api/plans                    Create plan from JSON definition
    GET    /api/plans/{id}               Get plan with options and rate table
    DELETE /api/plans/{id}               Delete plan (blocked while enrolled)
    POST   /api/plans/{id}/rates         Add a rate
    GET    /api/plans/{id}/rates/current Current displayed rate per option

  Enrollments:
    GET    /api/enrollments/{id}/history   Rate history (append-only)
    POST   /api/enrollments/{id}/terminate Set termination date

  Renewals:
    GET    /api/renewals                 List renewals
    POST   /api/renewals                 Schedule a renewal
    GET    /api/renewals/{id}            Get renewal with report
    POST   /api/renewals/{id}/process    Process now

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    POST   /api/scenarios/load           Load a demo scenario
    POST   /api/scenarios/reset          Reset database (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (plan still referenced by enrollments)
  - 422: Rate-table gaps (no active rate, no matching age band)
  - 500: Internal errors, invariant violations

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coverline/benefits-engine/engine"
	"github.com/coverline/benefits-engine/factory"
	"github.com/coverline/benefits-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	PlanFactory  *factory.PlanFactory
	Materializer *engine.Materializer
	Renewals     *engine.RenewalProcessor
	Log          logrus.FieldLogger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:        store,
		PlanFactory:  factory.NewPlanFactory(),
		Materializer: engine.NewMaterializer(store),
		Renewals:     engine.NewRenewalProcessor(store),
		Log:          logrus.WithField("module", "api"),
	}
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all employer groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates a new employer group.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Group name is required", nil)
		return
	}

	g := engine.Group{ID: engine.GroupID(orGenerated(req.ID)), Name: req.Name}
	if err := h.Store.SaveGroup(r.Context(), g); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

// GetGroup returns a single group.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.Store.GetGroup(r.Context(), engine.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get group", err)
		return
	}
	if g == nil {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*g))
}

// ListGroupParticipants returns all participants in a group.
func (h *Handler) ListGroupParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.Store.ListParticipants(r.Context(), engine.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list participants", err)
		return
	}

	dtos := make([]ParticipantDTO, len(participants))
	for i, p := range participants {
		dtos[i] = toParticipantDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListGroupPlans returns all plans owned by a group.
func (h *Handler) ListGroupPlans(w http.ResponseWriter, r *http.Request) {
	h.listPlans(w, r, engine.GroupID(chi.URLParam(r, "id")), "")
}

// =============================================================================
// PARTICIPANT HANDLERS
// =============================================================================

// CreateParticipant creates a new participant.
func (h *Handler) CreateParticipant(w http.ResponseWriter, r *http.Request) {
	var req CreateParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "Participant name and group_id are required", nil)
		return
	}

	p := engine.Participant{
		ID:      engine.ParticipantID(orGenerated(req.ID)),
		GroupID: engine.GroupID(req.GroupID),
		Name:    req.Name,
		Class:   req.Class,
	}
	var err error
	if p.DOB, err = parseOptionalDate(req.DOB); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dob format (use YYYY-MM-DD)", err)
		return
	}
	if p.TerminationDate, err = parseOptionalDate(req.TerminationDate); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid termination_date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.SaveParticipant(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create participant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipantDTO(p))
}

// GetParticipant returns a single participant.
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.Participant(r.Context(), engine.ParticipantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get participant", err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "Participant not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantDTO(*p))
}

// ListDependents returns a participant's dependents.
func (h *Handler) ListDependents(w http.ResponseWriter, r *http.Request) {
	dependents, err := h.Store.Dependents(r.Context(), engine.ParticipantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list dependents", err)
		return
	}

	dtos := make([]DependentDTO, len(dependents))
	for i, d := range dependents {
		dtos[i] = toDependentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddDependent adds a dependent and silently extends any active age-banded
// enrollment whose coverage selection already implies the dependent's class.
func (h *Handler) AddDependent(w http.ResponseWriter, r *http.Request) {
	participantID := engine.ParticipantID(chi.URLParam(r, "id"))

	var req CreateDependentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rel := engine.Relationship(req.Relationship)
	if !rel.Valid() {
		writeError(w, http.StatusBadRequest, "Relationship must be spouse or child", nil)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Dependent name is required", nil)
		return
	}

	participant, err := h.Store.Participant(r.Context(), participantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get participant", err)
		return
	}
	if participant == nil {
		writeError(w, http.StatusNotFound, "Participant not found", nil)
		return
	}

	d := engine.Dependent{
		ID:            engine.DependentID(orGenerated(req.ID)),
		ParticipantID: participantID,
		Relationship:  rel,
		Name:          req.Name,
	}
	if d.DOB, err = parseOptionalDate(req.DOB); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dob format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.SaveDependent(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save dependent", err)
		return
	}

	extended, err := h.Materializer.ExtendForDependent(r.Context(), participantID, d.ID)
	if err != nil {
		// The dependent is saved; surface the extension failure so the
		// account manager can fix the data and re-run.
		h.Log.WithError(err).WithFields(logrus.Fields{
			"participant": participantID,
			"dependent":   d.ID,
		}).Warn("dependent saved but enrollment extension failed")
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Dependent DependentDTO    `json:"dependent"`
		Extended  []EnrollmentDTO `json:"extended_enrollments,omitempty"`
	}{toDependentDTO(d), toEnrollmentDTOs(extended)})
}

// ListParticipantEnrollments returns all enrollment records of a participant.
func (h *Handler) ListParticipantEnrollments(w http.ResponseWriter, r *http.Request) {
	enrollments, err := h.Store.ParticipantEnrollments(r.Context(), engine.ParticipantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list enrollments", err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentDTOs(enrollments))
}

// Enroll materializes an enrollment request into per-person records.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	participantID := engine.ParticipantID(chi.URLParam(r, "id"))

	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "plan_id is required", nil)
		return
	}
	effective, err := engine.ParseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date format (use YYYY-MM-DD)", err)
		return
	}

	enrollments, err := h.Materializer.Materialize(r.Context(), engine.EnrollmentRequest{
		ParticipantID: participantID,
		PlanID:        engine.PlanID(req.PlanID),
		Coverage:      engine.CoverageSelection(req.Coverage),
		OptionID:      engine.OptionID(req.OptionID),
		EffectiveDate: effective,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEnrollmentDTOs(enrollments))
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns plans, filterable by group and family.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	h.listPlans(w, r,
		engine.GroupID(r.URL.Query().Get("group_id")),
		engine.PlanFamily(r.URL.Query().Get("family")))
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request, groupID engine.GroupID, family engine.PlanFamily) {
	plans, err := h.Store.ListPlans(r.Context(), groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}

	dtos := make([]PlanDTO, 0, len(plans))
	for _, p := range plans {
		if family != "" && p.Family != family {
			continue
		}
		dto, err := h.planDTO(r, p)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load plan", err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan creates a plan with its options and rates from a JSON definition.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	plan, options, rates, err := h.PlanFactory.FromJSON(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid plan definition", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SavePlan(ctx, *plan); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save plan", err)
		return
	}
	for _, o := range options {
		if err := h.Store.SaveOption(ctx, o); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save plan option", err)
			return
		}
	}
	for _, rt := range rates {
		if err := h.Store.SaveRate(ctx, rt); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save rate", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, PlanDTO{
		Config: h.PlanFactory.ToJSON(*plan, options, rates),
	})
}

// GetPlan returns a plan with its full option and rate table.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Store.Plan(r.Context(), engine.PlanID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get plan", err)
		return
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "Plan not found", nil)
		return
	}

	dto, err := h.planDTO(r, *plan)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load plan", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) planDTO(r *http.Request, plan engine.Plan) (PlanDTO, error) {
	ctx := r.Context()
	options, err := h.Store.PlanOptions(ctx, plan.ID)
	if err != nil {
		return PlanDTO{}, err
	}
	rates, err := h.Store.RatesForPlan(ctx, plan.ID)
	if err != nil {
		return PlanDTO{}, err
	}
	count, err := h.Store.EnrollmentCount(ctx, plan.ID)
	if err != nil {
		return PlanDTO{}, err
	}
	return PlanDTO{
		Config:          h.PlanFactory.ToJSON(plan, options, rates),
		EnrollmentCount: count,
	}, nil
}

// DeletePlan removes a plan. Plans referenced by any enrollment are never
// deleted; terminate them instead.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	planID := engine.PlanID(chi.URLParam(r, "id"))
	ctx := r.Context()

	plan, err := h.Store.Plan(ctx, planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get plan", err)
		return
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "Plan not found", nil)
		return
	}

	count, err := h.Store.EnrollmentCount(ctx, planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to check enrollments", err)
		return
	}
	if count > 0 {
		writeError(w, http.StatusConflict, "Plan has enrollments and cannot be deleted", engine.ErrPlanHasEnrollments)
		return
	}

	if err := h.Store.DeletePlan(ctx, planID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete plan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddRate appends a rate to an existing plan's table.
func (h *Handler) AddRate(w http.ResponseWriter, r *http.Request) {
	planID := engine.PlanID(chi.URLParam(r, "id"))
	ctx := r.Context()

	plan, err := h.Store.Plan(ctx, planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get plan", err)
		return
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "Plan not found", nil)
		return
	}

	var req CreateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if plan.Family == engine.FamilyGroup && req.OptionID == "" {
		writeError(w, http.StatusBadRequest, "Group plan rates attach to an option", nil)
		return
	}

	rate, err := factory.ParseRateJSON(req.Rate, planID, engine.OptionID(req.OptionID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate", err)
		return
	}
	if err := h.Store.SaveRate(ctx, rate); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// CurrentRates returns the displayed rate per option: active if one exists,
// otherwise nearest pending, otherwise most recently ended.
func (h *Handler) CurrentRates(w http.ResponseWriter, r *http.Request) {
	planID := engine.PlanID(chi.URLParam(r, "id"))
	ctx := r.Context()

	plan, err := h.Store.Plan(ctx, planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get plan", err)
		return
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "Plan not found", nil)
		return
	}

	asOf := engine.Today()
	if q := r.URL.Query().Get("as_of"); q != "" {
		if asOf, err = engine.ParseDate(q); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
	}

	options, err := h.Store.PlanOptions(ctx, planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list options", err)
		return
	}

	displayFor := func(optionID engine.OptionID, label string) (DisplayRateDTO, error) {
		candidates, err := h.Store.CandidateRates(ctx, planID, optionID)
		if err != nil {
			return DisplayRateDTO{}, err
		}
		display := engine.ResolveDisplayRate(candidates, asOf)
		dto := DisplayRateDTO{
			OptionID:    string(optionID),
			OptionLabel: label,
			Status:      string(display.Status),
		}
		if display.Rate != nil {
			dto.RateID = string(display.Rate.ID)
			dto.Start = display.Rate.Start.String()
			dto.End = dateString(display.Rate.End)
			dto.Amount = display.Rate.Amount.String()
		}
		return dto, nil
	}

	var dtos []DisplayRateDTO
	if len(options) == 0 {
		// Medicare plans price at the plan level.
		dto, err := displayFor("", "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to resolve rates", err)
			return
		}
		dtos = append(dtos, dto)
	}
	for _, o := range options {
		dto, err := displayFor(o.ID, o.Label)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to resolve rates", err)
			return
		}
		dtos = append(dtos, dto)
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

// GetRateHistory returns the full rate history of an enrollment.
func (h *Handler) GetRateHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.RateHistory(r.Context(), engine.EnrollmentID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load rate history", err)
		return
	}

	dtos := make([]RateHistoryDTO, len(entries))
	for i, entry := range entries {
		dtos[i] = toRateHistoryDTO(entry)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TerminateEnrollment sets an enrollment's termination date.
func (h *Handler) TerminateEnrollment(w http.ResponseWriter, r *http.Request) {
	id := engine.EnrollmentID(chi.URLParam(r, "id"))

	var req struct {
		TerminationDate string `json:"termination_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	end, err := engine.ParseDate(req.TerminationDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid termination_date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.TerminateEnrollment(r.Context(), id, end); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// RENEWAL HANDLERS
// =============================================================================

// ListRenewals returns all renewals, newest scheduled last.
func (h *Handler) ListRenewals(w http.ResponseWriter, r *http.Request) {
	renewals, err := h.Store.ListRenewals(r.Context(), engine.RenewalStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list renewals", err)
		return
	}

	dtos := make([]RenewalDTO, len(renewals))
	for i, ren := range renewals {
		dtos[i] = toRenewalDTO(ren)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRenewal schedules a renewal for a set of plans.
func (h *Handler) CreateRenewal(w http.ResponseWriter, r *http.Request) {
	var req CreateRenewalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if len(req.PlanIDs) == 0 {
		writeError(w, http.StatusBadRequest, "At least one plan is required", nil)
		return
	}

	planIDs := make([]engine.PlanID, len(req.PlanIDs))
	for i, id := range req.PlanIDs {
		planIDs[i] = engine.PlanID(id)
	}

	ren := engine.Renewal{
		ID:      engine.RenewalID(uuid.NewString()),
		Date:    date,
		PlanIDs: planIDs,
		Status:  engine.RenewalPending,
	}
	if err := h.Store.SaveRenewal(r.Context(), ren); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save renewal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRenewalDTO(ren))
}

// GetRenewal returns a renewal with its report, when processed.
func (h *Handler) GetRenewal(w http.ResponseWriter, r *http.Request) {
	ren, err := h.Store.GetRenewal(r.Context(), engine.RenewalID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get renewal", err)
		return
	}
	if ren == nil {
		writeError(w, http.StatusNotFound, "Renewal not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalDTO(*ren))
}

// ProcessRenewal runs the renewal now. Re-processing an already-processed
// renewal is harmless: the engine counts every enrollment as skipped.
func (h *Handler) ProcessRenewal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ren, err := h.Store.GetRenewal(ctx, engine.RenewalID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get renewal", err)
		return
	}
	if ren == nil {
		writeError(w, http.StatusNotFound, "Renewal not found", nil)
		return
	}

	report, err := h.Renewals.Process(ctx, ren.Date, ren.PlanIDs)
	if err != nil {
		ren.Status = engine.RenewalFailed
		ren.Report = report
		if saveErr := h.Store.SaveRenewal(ctx, *ren); saveErr != nil {
			h.Log.WithError(saveErr).WithField("renewal", ren.ID).Error("failed to record renewal failure")
		}
		writeError(w, http.StatusInternalServerError, "Renewal processing failed", err)
		return
	}

	ren.Status = engine.RenewalProcessed
	ren.Report = report
	if err := h.Store.SaveRenewal(ctx, *ren); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save renewal result", err)
		return
	}
	writeJSON(w, http.StatusOK, toRenewalDTO(*ren))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine error categories onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsConfigError(err):
		writeError(w, http.StatusUnprocessableEntity, "Rate table gap", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseOptionalDate(s string) (*engine.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func orGenerated(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
