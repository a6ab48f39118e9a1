/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates groups, plans with
	rate tables, participants, dependents, and enrollments that demonstrate
	specific features.

AVAILABLE SCENARIOS:

	small-group:    Age-banded medical + composite dental for one employer
	medicare:       Medicare supplement with plan-level rates
	renewal-season: Plan crossing a rate boundary with a scheduled renewal

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create plans via the plan factory
 3. Create participants and dependents
 4. Enroll through the materializer so rate history is captured
 5. Optionally schedule a renewal

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-group"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/plan.go: Plan JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/benefits-engine/engine"
)

var errUnknownScenario = errors.New("unknown scenario")

// SeedScenario resets the database and loads the named scenario. Used by the
// LoadScenario handler and the seed CLI command.
func (h *Handler) SeedScenario(ctx context.Context, scenarioID string) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}

	var err error
	switch scenarioID {
	case "small-group":
		err = loadSmallGroupScenario(ctx, h)
	case "medicare":
		err = loadMedicareScenario(ctx, h)
	case "renewal-season":
		err = loadRenewalSeasonScenario(ctx, h)
	default:
		return errUnknownScenario
	}
	if err != nil {
		return err
	}

	h.currentScenario = scenarioID
	return nil
}

// =============================================================================
// SCENARIO REGISTRY
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-group",
		Name:        "Small Group",
		Description: "Age-banded medical and composite dental for a 3-person employer, with spouse and child dependents",
	},
	{
		ID:          "medicare",
		Name:        "Medicare Supplement",
		Description: "Individual Medicare plan priced at the plan level, no group or options",
	},
	{
		ID:          "renewal-season",
		Name:        "Renewal Season",
		Description: "Enrollments captured on last year's rates with a renewal scheduled for January 1st",
	},
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		ScenarioID string `json:"scenario_id"`
	}{h.currentScenario})
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.SeedScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ScenarioID string `json:"scenario_id"`
		Status     string `json:"status"`
	}{req.ScenarioID, "loaded"})
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{"reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadSmallGroupScenario builds a 3-person employer with an age-banded
// medical plan and a composite dental plan with a class override.
func loadSmallGroupScenario(ctx context.Context, h *Handler) error {
	year := engine.Today().Year()
	jan1 := engine.NewDate(year, 1, 1)

	group := engine.Group{ID: "grp-acme", Name: "Acme Manufacturing"}
	if err := h.Store.SaveGroup(ctx, group); err != nil {
		return err
	}

	medical := fmt.Sprintf(`{
		"id": "plan-acme-medical",
		"group_id": "grp-acme",
		"name": "Acme Medical",
		"family": "group",
		"type": "age_banded",
		"effective_date": "%[1]s",
		"contribution": {"type": "percentage", "value": "50"},
		"options": [
			{"id": "opt-med-30", "label": "30", "rates": [{"start": "%[1]s", "amount": "310.00"}]},
			{"id": "opt-med-40", "label": "40", "rates": [{"start": "%[1]s", "amount": "425.00"}]},
			{"id": "opt-med-50", "label": "50", "rates": [{"start": "%[1]s", "amount": "610.00"}]},
			{"id": "opt-med-60", "label": "60", "rates": [{"start": "%[1]s", "amount": "890.00"}]}
		]
	}`, jan1)

	dental := fmt.Sprintf(`{
		"id": "plan-acme-dental",
		"group_id": "grp-acme",
		"name": "Acme Dental",
		"family": "group",
		"type": "composite",
		"effective_date": "%[1]s",
		"contribution": {"type": "percentage", "value": "100"},
		"options": [
			{"id": "opt-den-eo", "label": "Employee Only", "rates": [
				{"start": "%[1]s", "amount": "42.00",
				 "class_contributions": {"2": {"type": "dollar", "value": "20.00"}}}
			]},
			{"id": "opt-den-fam", "label": "Family", "rates": [{"start": "%[1]s", "amount": "118.00"}]}
		]
	}`, jan1)

	for _, def := range []string{medical, dental} {
		if err := savePlanDefinition(ctx, h, def); err != nil {
			return err
		}
	}

	participants := []engine.Participant{
		{ID: "emp-alice", GroupID: group.ID, Name: "Alice Navarro", DOB: dob(year-42, 3, 14), Class: 1},
		{ID: "emp-bob", GroupID: group.ID, Name: "Bob Tran", DOB: dob(year-33, 7, 2), Class: 1},
		{ID: "emp-carol", GroupID: group.ID, Name: "Carol Osei", DOB: dob(year-55, 11, 30), Class: 2},
	}
	for _, p := range participants {
		if err := h.Store.SaveParticipant(ctx, p); err != nil {
			return err
		}
	}

	dependents := []engine.Dependent{
		{ID: "dep-alice-spouse", ParticipantID: "emp-alice", Relationship: engine.RelationshipSpouse, Name: "Dan Navarro", DOB: dob(year-44, 5, 20)},
		{ID: "dep-alice-child", ParticipantID: "emp-alice", Relationship: engine.RelationshipChild, Name: "Eve Navarro", DOB: dob(year-9, 9, 9)},
	}
	for _, d := range dependents {
		if err := h.Store.SaveDependent(ctx, d); err != nil {
			return err
		}
	}

	enrollments := []engine.EnrollmentRequest{
		{ParticipantID: "emp-alice", PlanID: "plan-acme-medical", Coverage: engine.CoverEmployeeSpouseChildren, EffectiveDate: jan1},
		{ParticipantID: "emp-bob", PlanID: "plan-acme-medical", Coverage: engine.CoverEmployeeOnly, EffectiveDate: jan1},
		{ParticipantID: "emp-bob", PlanID: "plan-acme-dental", OptionID: "opt-den-eo", EffectiveDate: jan1},
		{ParticipantID: "emp-carol", PlanID: "plan-acme-dental", OptionID: "opt-den-eo", EffectiveDate: jan1},
	}
	for _, req := range enrollments {
		if _, err := h.Materializer.Materialize(ctx, req); err != nil {
			return fmt.Errorf("enroll %s in %s: %w", req.ParticipantID, req.PlanID, err)
		}
	}

	return nil
}

// loadMedicareScenario builds an individual Medicare supplement plan with
// plan-level rates and one enrollee.
func loadMedicareScenario(ctx context.Context, h *Handler) error {
	year := engine.Today().Year()
	jan1 := engine.NewDate(year, 1, 1)

	// Medicare participants still live under a bookkeeping group.
	group := engine.Group{ID: "grp-individual", Name: "Individual Book"}
	if err := h.Store.SaveGroup(ctx, group); err != nil {
		return err
	}

	def := fmt.Sprintf(`{
		"id": "plan-medsupp-g",
		"name": "Medicare Supplement Plan G",
		"family": "medicare",
		"type": "other",
		"effective_date": "%[1]s",
		"contribution": {"type": "dollar", "value": "0"},
		"rates": [{"start": "%[1]s", "amount": "187.25"}]
	}`, jan1)
	if err := savePlanDefinition(ctx, h, def); err != nil {
		return err
	}

	p := engine.Participant{ID: "emp-frank", GroupID: group.ID, Name: "Frank Delgado", DOB: dob(year-68, 2, 11)}
	if err := h.Store.SaveParticipant(ctx, p); err != nil {
		return err
	}

	_, err := h.Materializer.Materialize(ctx, engine.EnrollmentRequest{
		ParticipantID: p.ID,
		PlanID:        "plan-medsupp-g",
		EffectiveDate: jan1,
	})
	return err
}

// loadRenewalSeasonScenario enrolls on last year's rates and schedules a
// renewal at this year's January 1st so processing it rolls history forward.
func loadRenewalSeasonScenario(ctx context.Context, h *Handler) error {
	year := engine.Today().Year()
	lastJan1 := engine.NewDate(year-1, 1, 1)
	lastDec31 := engine.NewDate(year-1, 12, 31)
	jan1 := engine.NewDate(year, 1, 1)

	group := engine.Group{ID: "grp-lighthouse", Name: "Lighthouse Logistics"}
	if err := h.Store.SaveGroup(ctx, group); err != nil {
		return err
	}

	def := fmt.Sprintf(`{
		"id": "plan-lh-vision",
		"group_id": "grp-lighthouse",
		"name": "Lighthouse Vision",
		"family": "group",
		"type": "composite",
		"effective_date": "%s",
		"contribution": {"type": "dollar", "value": "10.00"},
		"options": [
			{"id": "opt-vis-eo", "label": "Employee Only", "rates": [
				{"start": "%s", "end": "%s", "amount": "18.00"},
				{"start": "%s", "amount": "21.00"}
			]}
		]
	}`, lastJan1, lastJan1, lastDec31, jan1)
	if err := savePlanDefinition(ctx, h, def); err != nil {
		return err
	}

	participants := []engine.Participant{
		{ID: "emp-grace", GroupID: group.ID, Name: "Grace Liu", DOB: dob(year-38, 4, 8), Class: 1},
		{ID: "emp-henry", GroupID: group.ID, Name: "Henry Okafor", DOB: dob(year-47, 10, 19), Class: 1},
	}
	for _, p := range participants {
		if err := h.Store.SaveParticipant(ctx, p); err != nil {
			return err
		}
		if _, err := h.Materializer.Materialize(ctx, engine.EnrollmentRequest{
			ParticipantID: p.ID,
			PlanID:        "plan-lh-vision",
			OptionID:      "opt-vis-eo",
			EffectiveDate: lastJan1,
		}); err != nil {
			return err
		}
	}

	return h.Store.SaveRenewal(ctx, engine.Renewal{
		ID:      engine.RenewalID(uuid.NewString()),
		Date:    jan1,
		PlanIDs: []engine.PlanID{"plan-lh-vision"},
		Status:  engine.RenewalPending,
	})
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

func savePlanDefinition(ctx context.Context, h *Handler, def string) error {
	plan, options, rates, err := h.PlanFactory.ParsePlan(def)
	if err != nil {
		return err
	}
	if err := h.Store.SavePlan(ctx, *plan); err != nil {
		return err
	}
	for _, o := range options {
		if err := h.Store.SaveOption(ctx, o); err != nil {
			return err
		}
	}
	for _, r := range rates {
		if err := h.Store.SaveRate(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func dob(year, month, day int) *engine.Date {
	d := engine.NewDate(year, time.Month(month), day)
	return &d
}
