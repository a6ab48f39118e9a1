/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Groups / People:
    GroupDTO, ParticipantDTO, DependentDTO and their create requests

  Plans:
    PlanDTO (wraps factory.PlanJSON), DisplayRateDTO

  Enrollments:
    EnrollRequest, EnrollmentDTO, RateHistoryDTO

  Renewals:
    CreateRenewalRequest, RenewalDTO

MONEY:
  Amounts travel as decimal strings ("123.45"), never floats; the engine
  computes in decimal.Decimal end to end.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/plan.go: PlanJSON type
*/
package api

import (
	"github.com/coverline/benefits-engine/engine"
	"github.com/coverline/benefits-engine/factory"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// GroupDTO represents an employer group in API responses.
type GroupDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreateGroupRequest is the request to create a group.
type CreateGroupRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ParticipantDTO represents a covered employee.
type ParticipantDTO struct {
	ID              string `json:"id"`
	GroupID         string `json:"group_id"`
	Name            string `json:"name"`
	DOB             string `json:"dob,omitempty"`
	Class           int    `json:"class,omitempty"`
	TerminationDate string `json:"termination_date,omitempty"`
}

// CreateParticipantRequest is the request to create a participant.
type CreateParticipantRequest struct {
	ID              string `json:"id,omitempty"`
	GroupID         string `json:"group_id"`
	Name            string `json:"name"`
	DOB             string `json:"dob,omitempty"`
	Class           int    `json:"class,omitempty"`
	TerminationDate string `json:"termination_date,omitempty"`
}

// DependentDTO represents a dependent of a participant.
type DependentDTO struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Relationship  string `json:"relationship"`
	Name          string `json:"name"`
	DOB           string `json:"dob,omitempty"`
}

// CreateDependentRequest is the request to add a dependent. Adding one may
// silently extend existing enrollments (see handlers.go).
type CreateDependentRequest struct {
	ID           string `json:"id,omitempty"`
	Relationship string `json:"relationship"`
	Name         string `json:"name"`
	DOB          string `json:"dob,omitempty"`
}

// PlanDTO represents a plan with its options and rate table.
type PlanDTO struct {
	Config          factory.PlanJSON `json:"config"`
	EnrollmentCount int              `json:"enrollment_count"`
}

// CreatePlanRequest is the request to create a plan from JSON.
type CreatePlanRequest struct {
	Config factory.PlanJSON `json:"config"`
}

// CreateRateRequest is the request to add a rate to an existing plan.
type CreateRateRequest struct {
	OptionID string           `json:"option_id,omitempty"` // empty = plan-level (Medicare)
	Rate     factory.RateJSON `json:"rate"`
}

// DisplayRateDTO is the current-rate view: the active rate when one exists,
// otherwise the nearest pending or most recently ended one, flagged by status.
type DisplayRateDTO struct {
	OptionID    string `json:"option_id,omitempty"`
	OptionLabel string `json:"option_label,omitempty"`
	Status      string `json:"status"` // active, pending, ended, none
	RateID      string `json:"rate_id,omitempty"`
	Start       string `json:"start,omitempty"`
	End         string `json:"end,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// EnrollRequest is the request to enroll a participant in a plan.
type EnrollRequest struct {
	PlanID        string `json:"plan_id"`
	Coverage      string `json:"coverage,omitempty"`  // age-banded plans
	OptionID      string `json:"option_id,omitempty"` // composite/other plans
	EffectiveDate string `json:"effective_date"`
}

// EnrollmentDTO represents one enrollment record (one covered person).
type EnrollmentDTO struct {
	ID              string `json:"id"`
	ParticipantID   string `json:"participant_id"`
	DependentID     string `json:"dependent_id,omitempty"`
	PlanID          string `json:"plan_id"`
	OptionID        string `json:"option_id,omitempty"`
	Coverage        string `json:"coverage,omitempty"`
	EffectiveDate   string `json:"effective_date"`
	TerminationDate string `json:"termination_date,omitempty"`
	RateOverride    string `json:"rate_override,omitempty"`
}

// RateHistoryDTO represents one captured rate interval for an enrollment.
type RateHistoryDTO struct {
	ID               string `json:"id"`
	EnrollmentID     string `json:"enrollment_id"`
	RateID           string `json:"rate_id"`
	Start            string `json:"start"`
	End              string `json:"end,omitempty"`
	RateAmount       string `json:"rate_amount"`
	ContributionType string `json:"contribution_type,omitempty"`
	EmployerAmount   string `json:"employer_amount"`
	EmployeeAmount   string `json:"employee_amount"`
}

// CreateRenewalRequest schedules a renewal for a set of plans.
type CreateRenewalRequest struct {
	Date    string   `json:"date"`
	PlanIDs []string `json:"plan_ids"`
}

// RenewalDTO represents a renewal and, once processed, its report.
type RenewalDTO struct {
	ID      string                `json:"id"`
	Date    string                `json:"date"`
	PlanIDs []string              `json:"plan_ids"`
	Status  string                `json:"status"`
	Report  *engine.RenewalReport `json:"report,omitempty"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toGroupDTO(g engine.Group) GroupDTO {
	return GroupDTO{ID: string(g.ID), Name: g.Name}
}

func toParticipantDTO(p engine.Participant) ParticipantDTO {
	return ParticipantDTO{
		ID:              string(p.ID),
		GroupID:         string(p.GroupID),
		Name:            p.Name,
		DOB:             dateString(p.DOB),
		Class:           p.Class,
		TerminationDate: dateString(p.TerminationDate),
	}
}

func toDependentDTO(d engine.Dependent) DependentDTO {
	return DependentDTO{
		ID:            string(d.ID),
		ParticipantID: string(d.ParticipantID),
		Relationship:  string(d.Relationship),
		Name:          d.Name,
		DOB:           dateString(d.DOB),
	}
}

func toEnrollmentDTO(e engine.Enrollment) EnrollmentDTO {
	dto := EnrollmentDTO{
		ID:              string(e.ID),
		ParticipantID:   string(e.ParticipantID),
		DependentID:     string(e.DependentID),
		PlanID:          string(e.PlanID),
		OptionID:        string(e.OptionID),
		Coverage:        string(e.Coverage),
		EffectiveDate:   e.EffectiveDate.String(),
		TerminationDate: dateString(e.TerminationDate),
	}
	if e.RateOverride != nil {
		dto.RateOverride = e.RateOverride.String()
	}
	return dto
}

func toEnrollmentDTOs(enrollments []engine.Enrollment) []EnrollmentDTO {
	dtos := make([]EnrollmentDTO, len(enrollments))
	for i, e := range enrollments {
		dtos[i] = toEnrollmentDTO(e)
	}
	return dtos
}

func toRateHistoryDTO(h engine.RateHistoryEntry) RateHistoryDTO {
	return RateHistoryDTO{
		ID:               string(h.ID),
		EnrollmentID:     string(h.EnrollmentID),
		RateID:           string(h.RateID),
		Start:            h.Start.String(),
		End:              dateString(h.End),
		RateAmount:       h.RateAmount.String(),
		ContributionType: string(h.ContributionType),
		EmployerAmount:   h.EmployerAmount.String(),
		EmployeeAmount:   h.EmployeeAmount.String(),
	}
}

func toRenewalDTO(r engine.Renewal) RenewalDTO {
	planIDs := make([]string, len(r.PlanIDs))
	for i, id := range r.PlanIDs {
		planIDs[i] = string(id)
	}
	return RenewalDTO{
		ID:      string(r.ID),
		Date:    r.Date.String(),
		PlanIDs: planIDs,
		Status:  string(r.Status),
		Report:  r.Report,
	}
}

func dateString(d *engine.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
