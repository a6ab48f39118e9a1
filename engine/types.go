/*
Package engine implements the rate-resolution and enrollment core of the
benefits administration system.

PURPOSE:
  Given a participant, a plan, and a point in time, the engine determines
  which priced rate applies, how the cost splits between employer and
  employee, and - on a plan renewal - how to re-bind every active enrollment
  to the new rate in bulk.

KEY CONCEPTS IN THIS FILE (types.go):
  - Plan / PlanOption / Rate: a coverage product, its priced buckets, and
    time-bounded prices
  - Participant / Dependent: the people being covered
  - Enrollment: the binding of one covered person to a plan option
  - RateHistoryEntry: append-only record of which rate applied when, with
    the contribution split captured at write time

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every money amount, never floats
  2. Date-only: all temporal fields are calendar dates (see date.go)
  3. Type safety: distinct ID types so a PlanID can't be passed as an OptionID
  4. Closed unions: PlanType and ContributionType are tagged values consumed
     via exhaustive switches inside the engine, not string checks at call sites

SEE ALSO:
  - resolver.go: which rate is active at a date
  - ageband.go: which priced bucket fits a person's age
  - contribution.go: employer/employee split
  - materialize.go: enroll request -> enrollment records
  - renewal.go: bulk re-rating at a renewal date
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	GroupID       string
	PlanID        string
	OptionID      string
	RateID        string
	ParticipantID string
	DependentID   string
	EnrollmentID  string
	HistoryID     string
	RenewalID     string
)

// =============================================================================
// PLANS
// =============================================================================

// PlanFamily distinguishes employer group coverage from Medicare coverage.
// Medicare plans are global (no owning group) and carry their rates directly
// on the plan rather than on options.
type PlanFamily string

const (
	FamilyGroup    PlanFamily = "group"
	FamilyMedicare PlanFamily = "medicare"
)

// PlanType is a closed union. Every engine branch on plan type is an
// exhaustive switch; unknown values are rejected at the boundary.
type PlanType string

const (
	PlanAgeBanded PlanType = "age_banded"
	PlanComposite PlanType = "composite"
	PlanOther     PlanType = "other"
)

func (t PlanType) Valid() bool {
	switch t {
	case PlanAgeBanded, PlanComposite, PlanOther:
		return true
	}
	return false
}

func (f PlanFamily) Valid() bool {
	return f == FamilyGroup || f == FamilyMedicare
}

// ContributionType says how the employer share is expressed.
type ContributionType string

const (
	ContributionPercentage ContributionType = "percentage"
	ContributionDollar     ContributionType = "dollar"
)

func (t ContributionType) Valid() bool {
	return t == ContributionPercentage || t == ContributionDollar
}

// ContributionPolicy is the employer contribution rule: a percentage of the
// rate, or a fixed dollar amount (clamped so the employee share never goes
// negative - see contribution.go).
type ContributionPolicy struct {
	Type  ContributionType
	Value decimal.Decimal
}

// Plan identifies a coverage product. Never hard-deleted while enrollments
// reference it.
type Plan struct {
	ID      PlanID
	GroupID GroupID // empty for Medicare plans
	Name    string
	Family  PlanFamily
	Type    PlanType

	EffectiveDate   Date
	TerminationDate *Date

	// Employer contribution policy. Composite rates may override this
	// per employee class (see Rate.ClassContributions).
	Contribution ContributionPolicy
}

// TerminatedBefore reports whether the plan is terminated strictly before
// the given date.
func (p Plan) TerminatedBefore(d Date) bool {
	return p.TerminationDate != nil && p.TerminationDate.Before(d)
}

// PlanOption is a named bucket under a plan. For age-banded plans the label
// is an age threshold ("30", "40"); for composite plans it is a tier name
// ("Employee Only"). Owned by exactly one plan, deleted with it.
type PlanOption struct {
	ID     OptionID
	PlanID PlanID
	Label  string
}

// Rate is a priced value valid over [Start, End]. End == nil means
// open-ended. Rates attach to a PlanOption, or directly to a Medicare plan
// (OptionID empty). Immutable once written.
type Rate struct {
	ID       RateID
	PlanID   PlanID
	OptionID OptionID // empty for plan-level (Medicare) rates

	Start  Date
	End    *Date
	Amount decimal.Decimal

	// Composite plans may carry per-class contribution overrides on the
	// rate itself, keyed by employee class number. When the participant's
	// class is absent the plan-level policy applies.
	ClassContributions map[int]ContributionPolicy
}

// ActiveAt reports whether the rate's interval contains d.
func (r Rate) ActiveAt(d Date) bool {
	if r.Start.After(d) {
		return false
	}
	return r.End == nil || r.End.AfterOrEqual(d)
}

// EndedBefore reports whether the rate's interval closed strictly before d.
func (r Rate) EndedBefore(d Date) bool {
	return r.End != nil && r.End.Before(d)
}

// =============================================================================
// PEOPLE
// =============================================================================

// Group is an employer group that owns plans and participants.
type Group struct {
	ID   GroupID
	Name string
}

// Participant is the covered employee.
type Participant struct {
	ID      ParticipantID
	GroupID GroupID
	Name    string
	DOB     *Date
	Class   int // employee class for composite contribution overrides

	TerminationDate *Date
}

func (p Participant) TerminatedBefore(d Date) bool {
	return p.TerminationDate != nil && p.TerminationDate.Before(d)
}

// Relationship of a dependent to the participant.
type Relationship string

const (
	RelationshipSpouse Relationship = "spouse"
	RelationshipChild  Relationship = "child"
)

func (r Relationship) Valid() bool {
	return r == RelationshipSpouse || r == RelationshipChild
}

// Dependent belongs to exactly one participant.
type Dependent struct {
	ID            DependentID
	ParticipantID ParticipantID
	Relationship  Relationship
	Name          string
	DOB           *Date
}

// =============================================================================
// COVERAGE SELECTION
// =============================================================================

// CoverageSelection says who an age-banded enrollment covers. Composite and
// other plans select a PlanOption instead.
type CoverageSelection string

const (
	CoverEmployeeOnly           CoverageSelection = "employee_only"
	CoverEmployeeSpouse         CoverageSelection = "employee_spouse"
	CoverEmployeeChildren       CoverageSelection = "employee_children"
	CoverEmployeeSpouseChildren CoverageSelection = "employee_spouse_children"
)

func (c CoverageSelection) Valid() bool {
	switch c {
	case CoverEmployeeOnly, CoverEmployeeSpouse, CoverEmployeeChildren, CoverEmployeeSpouseChildren:
		return true
	}
	return false
}

// IncludesSpouse reports whether the selection implies spouse coverage.
func (c CoverageSelection) IncludesSpouse() bool {
	return c == CoverEmployeeSpouse || c == CoverEmployeeSpouseChildren
}

// IncludesChildren reports whether the selection implies child coverage.
func (c CoverageSelection) IncludesChildren() bool {
	return c == CoverEmployeeChildren || c == CoverEmployeeSpouseChildren
}

// Covers reports whether the selection implies coverage for the given
// dependent relationship.
func (c CoverageSelection) Covers(rel Relationship) bool {
	switch rel {
	case RelationshipSpouse:
		return c.IncludesSpouse()
	case RelationshipChild:
		return c.IncludesChildren()
	}
	return false
}

// =============================================================================
// ENROLLMENTS
// =============================================================================

// Enrollment binds a participant (and optionally a dependent, for the
// age-banded per-person fan-out) to a plan and, through its rate history, to
// a resolved rate. DependentID empty means this is the employee's own record.
type Enrollment struct {
	ID            EnrollmentID
	ParticipantID ParticipantID
	DependentID   DependentID // empty for the employee record
	PlanID        PlanID
	OptionID      OptionID // the resolved band or selected tier
	Coverage      CoverageSelection

	EffectiveDate   Date
	TerminationDate *Date

	// Manual per-enrollment price override. When set it replaces the
	// resolved rate amount in contribution math; the resolved rate still
	// identifies which rate record applies.
	RateOverride *decimal.Decimal
}

// ActiveAt reports whether the enrollment's effective period covers d.
func (e Enrollment) ActiveAt(d Date) bool {
	if e.EffectiveDate.After(d) {
		return false
	}
	return e.TerminationDate == nil || e.TerminationDate.AfterOrEqual(d)
}

// ChargedAmount returns the amount contribution math runs against: the
// manual override when present, otherwise the resolved rate amount.
func (e Enrollment) ChargedAmount(resolved decimal.Decimal) decimal.Decimal {
	if e.RateOverride != nil {
		return *e.RateOverride
	}
	return resolved
}

// RateHistoryEntry is an append-only junction recording which rate applied
// to an enrollment over [Start, End], plus the contribution split captured
// when the entry was written (never recomputed later).
//
// INVARIANT: at most one entry per enrollment has End == nil (the currently
// active entry). The renewal processor preserves this by treating
// "close previous, open new" as one unit.
type RateHistoryEntry struct {
	ID           HistoryID
	EnrollmentID EnrollmentID
	RateID       RateID

	Start Date
	End   *Date

	RateAmount       decimal.Decimal
	ContributionType ContributionType
	EmployerAmount   decimal.Decimal
	EmployeeAmount   decimal.Decimal
}

// Open reports whether this is the currently active entry.
func (h RateHistoryEntry) Open() bool { return h.End == nil }

// =============================================================================
// RENEWALS
// =============================================================================

type RenewalStatus string

const (
	RenewalPending   RenewalStatus = "pending"
	RenewalProcessed RenewalStatus = "processed"
	RenewalFailed    RenewalStatus = "failed"
)

// Renewal is a renewal date plus the set of plans being renewed. Processing
// it re-binds every active enrollment under those plans to the rate
// effective at the renewal date.
type Renewal struct {
	ID      RenewalID
	Date    Date
	PlanIDs []PlanID
	Status  RenewalStatus
	Report  *RenewalReport
}

// RenewalFailure records one enrollment the processor could not re-rate.
type RenewalFailure struct {
	PlanID        PlanID        `json:"plan_id"`
	ParticipantID ParticipantID `json:"participant_id"`
	EnrollmentID  EnrollmentID  `json:"enrollment_id"`
	Reason        string        `json:"reason"`
}

// RenewalReport summarizes a processed renewal. Failures are collected
// rather than aborting the batch; the caller presents them for manual
// remediation.
type RenewalReport struct {
	Succeeded int              `json:"succeeded"`
	Skipped   int              `json:"skipped"` // already renewed (idempotent re-run)
	Failures  []RenewalFailure `json:"failures,omitempty"`
}

// MustDecimal parses a decimal string, panicking on malformed input.
// For tests and seed data only.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
