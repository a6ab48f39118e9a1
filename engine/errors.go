/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  All engine error types in one place. Callers (API, CLI, scheduler)
  classify errors with errors.Is and the helpers below.

ERROR CATEGORIES:
  1. Validation errors - caller's fault, never retried
  2. NoActiveRateError - rate-table gap, a data/configuration problem
  3. Invariant violations - should not occur, guarded defensively, fatal
  4. Not-found errors - missing referenced records

USAGE:
  if engine.IsClientError(err) {
      // 400
  }
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all caller-input failures.
	ErrValidation = errors.New("validation failed")

	// ErrNoActiveRate is returned when the resolver finds zero candidates
	// for a required lookup. Never defaulted to a zero-cost rate.
	ErrNoActiveRate = errors.New("no active rate")

	// ErrNoAgeBand is returned when no plan option label parses as an age
	// band for an age-banded plan.
	ErrNoAgeBand = errors.New("no matching age band")

	// ErrOpenEntryViolation is returned when more than one open rate
	// history entry exists for a single enrollment. Fatal; never
	// auto-corrected, since guessing which entry is right would mask a
	// data bug.
	ErrOpenEntryViolation = errors.New("multiple open rate history entries")

	// ErrPlanHasEnrollments is returned when deleting a plan that
	// enrollments still reference.
	ErrPlanHasEnrollments = errors.New("plan has active enrollments")

	ErrGroupNotFound       = errors.New("group not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrOptionNotFound      = errors.New("plan option not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrDependentNotFound   = errors.New("dependent not found")
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrRenewalNotFound     = errors.New("renewal not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry diagnostic context
// =============================================================================

// ValidationError reports one or more caller-input problems from a single
// materialization attempt. No partial enrollment is ever persisted alongside
// a ValidationError.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// NoActiveRateError carries enough context (plan, option, date) to diagnose
// the rate-table gap.
type NoActiveRateError struct {
	PlanID   PlanID
	OptionID OptionID
	At       Date
}

func (e *NoActiveRateError) Error() string {
	if e.OptionID != "" {
		return fmt.Sprintf("no active rate for plan %s option %s at %s", e.PlanID, e.OptionID, e.At)
	}
	return fmt.Sprintf("no active rate for plan %s at %s", e.PlanID, e.At)
}

func (e *NoActiveRateError) Unwrap() error { return ErrNoActiveRate }

// NoAgeBandError reports that an age could not be placed in any band.
type NoAgeBandError struct {
	PlanID PlanID
	Age    int
}

func (e *NoAgeBandError) Error() string {
	return fmt.Sprintf("no age band for age %d on plan %s", e.Age, e.PlanID)
}

func (e *NoAgeBandError) Unwrap() error { return ErrNoAgeBand }

// OpenEntryViolationError reports the exactly-one-open-entry invariant
// being broken for an enrollment.
type OpenEntryViolationError struct {
	EnrollmentID EnrollmentID
	Count        int
}

func (e *OpenEntryViolationError) Error() string {
	return fmt.Sprintf("enrollment %s has %d open rate history entries, want at most 1", e.EnrollmentID, e.Count)
}

func (e *OpenEntryViolationError) Unwrap() error { return ErrOpenEntryViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfigError returns true if the error indicates a rate-table or plan
// configuration gap rather than bad input.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrNoActiveRate) || errors.Is(err, ErrNoAgeBand)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrOptionNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrDependentNotFound) ||
		errors.Is(err, ErrEnrollmentNotFound) ||
		errors.Is(err, ErrRenewalNotFound)
}
