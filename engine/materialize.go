/*
materialize.go - Enrollment materialization

PURPOSE:
  Expands a single "enroll participant P in plan X" request into one or
  more enrollment records:
  - age-banded plans fan out to one record per covered person (employee,
    each spouse, each child implied by the coverage selection), each bound
    to its own age band and resolved rate;
  - composite and other plans produce a single record for the selected
    option.

ATOMICITY:
  Resolution happens fully in memory first; nothing is persisted until
  every person has a band and a rate. Persistence then runs inside one
  per-plan transaction. A failure anywhere leaves zero enrollments behind.

CAPTURED AMOUNTS:
  Each created enrollment gets one opening rate history entry with the
  contribution split computed NOW. Later policy or rate edits never rewrite
  captured history; renewals append new entries instead.

AGE SEMANTICS:
  Ages are computed as of today, not the effective date - age bands track
  the person's current age. The clock is injectable for tests.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EnrollmentRequest is a single enrollment submission from the UI.
type EnrollmentRequest struct {
	ParticipantID ParticipantID
	PlanID        PlanID

	// Coverage drives the person fan-out for age-banded plans.
	Coverage CoverageSelection

	// OptionID is the selected tier for composite/other plans. Mandatory
	// for composite. Ignored for age-banded (bands are matched per person).
	OptionID OptionID

	EffectiveDate Date
}

// Materializer turns enrollment requests into persisted enrollment records
// with opening rate history.
type Materializer struct {
	Store TxStore
	Log   logrus.FieldLogger

	// Now is the clock used for age calculations. Defaults to Today.
	Now func() Date
}

// NewMaterializer creates a materializer over the given store.
func NewMaterializer(store TxStore) *Materializer {
	return &Materializer{
		Store: store,
		Log:   logrus.WithField("module", "materializer"),
		Now:   Today,
	}
}

func (m *Materializer) now() Date {
	if m.Now != nil {
		return m.Now()
	}
	return Today()
}

// Materialize validates the request, resolves a rate for every covered
// person, and persists the resulting enrollments and opening history entries
// atomically. On any failure nothing is persisted.
func (m *Materializer) Materialize(ctx context.Context, req EnrollmentRequest) ([]Enrollment, error) {
	if req.EffectiveDate.IsZero() {
		return nil, newValidationError("effective date is required")
	}

	plan, err := m.Store.Plan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	if plan.TerminatedBefore(req.EffectiveDate) {
		return nil, newValidationError(fmt.Sprintf("plan %s is terminated before %s", plan.ID, req.EffectiveDate))
	}

	participant, err := m.Store.Participant(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}

	var enrollments []Enrollment
	var history []RateHistoryEntry

	switch plan.Type {
	case PlanAgeBanded:
		enrollments, history, err = m.materializeAgeBanded(ctx, *plan, *participant, req)
	case PlanComposite, PlanOther:
		enrollments, history, err = m.materializeSingle(ctx, *plan, *participant, req)
	default:
		return nil, newValidationError(fmt.Sprintf("unknown plan type %q", plan.Type))
	}
	if err != nil {
		return nil, err
	}

	err = m.Store.WithPlanTx(ctx, plan.ID, func(s Store) error {
		if err := s.CreateEnrollments(ctx, enrollments); err != nil {
			return err
		}
		return s.AppendRateHistory(ctx, history)
	})
	if err != nil {
		return nil, err
	}

	m.Log.WithFields(logrus.Fields{
		"participant": req.ParticipantID,
		"plan":        req.PlanID,
		"effective":   req.EffectiveDate.String(),
		"records":     len(enrollments),
	}).Info("enrollment materialized")

	return enrollments, nil
}

// materializeAgeBanded fans out to one enrollment per covered person.
func (m *Materializer) materializeAgeBanded(
	ctx context.Context,
	plan Plan,
	participant Participant,
	req EnrollmentRequest,
) ([]Enrollment, []RateHistoryEntry, error) {

	var problems []string
	if !req.Coverage.Valid() {
		problems = append(problems, fmt.Sprintf("invalid coverage selection %q", req.Coverage))
		return nil, nil, newValidationError(problems...)
	}
	if participant.DOB == nil {
		problems = append(problems, "participant has no date of birth")
	}

	dependents, err := m.Store.Dependents(ctx, participant.ID)
	if err != nil {
		return nil, nil, err
	}

	var covered []Dependent
	for _, dep := range dependents {
		if req.Coverage.Covers(dep.Relationship) {
			covered = append(covered, dep)
		}
	}

	if req.Coverage.IncludesSpouse() && !hasRelationship(covered, RelationshipSpouse) {
		problems = append(problems, "coverage includes spouse but no spouse dependent on file")
	}
	// Child coverage with no children on file is allowed: children are often
	// added after the family enrollment and picked up by ExtendForDependent.
	for _, dep := range covered {
		if dep.DOB == nil {
			problems = append(problems, fmt.Sprintf("dependent %s has no date of birth", dep.ID))
		}
	}
	if len(problems) > 0 {
		return nil, nil, newValidationError(problems...)
	}

	options, err := m.Store.PlanOptions(ctx, plan.ID)
	if err != nil {
		return nil, nil, err
	}

	today := m.now()
	var enrollments []Enrollment
	var history []RateHistoryEntry

	appendPerson := func(dob Date, dependentID DependentID) error {
		enrollment, entry, err := m.bindPerson(ctx, plan, req, dob, dependentID, options, today)
		if err != nil {
			return err
		}
		enrollments = append(enrollments, enrollment)
		history = append(history, entry)
		return nil
	}

	if err := appendPerson(*participant.DOB, ""); err != nil {
		return nil, nil, err
	}
	for _, dep := range covered {
		if err := appendPerson(*dep.DOB, dep.ID); err != nil {
			return nil, nil, err
		}
	}

	return enrollments, history, nil
}

// bindPerson matches one covered person to a band, resolves the rate at the
// effective date, and builds the enrollment and its opening history entry.
func (m *Materializer) bindPerson(
	ctx context.Context,
	plan Plan,
	req EnrollmentRequest,
	dob Date,
	dependentID DependentID,
	options []PlanOption,
	today Date,
) (Enrollment, RateHistoryEntry, error) {

	age := AgeOn(dob, today)
	option := MatchAgeBand(age, options)
	if option == nil {
		return Enrollment{}, RateHistoryEntry{}, &NoAgeBandError{PlanID: plan.ID, Age: age}
	}

	rates, err := m.Store.CandidateRates(ctx, plan.ID, option.ID)
	if err != nil {
		return Enrollment{}, RateHistoryEntry{}, err
	}
	rate := ResolveRate(rates, req.EffectiveDate)
	if rate == nil {
		return Enrollment{}, RateHistoryEntry{}, &NoActiveRateError{PlanID: plan.ID, OptionID: option.ID, At: req.EffectiveDate}
	}

	enrollment := Enrollment{
		ID:            EnrollmentID(uuid.NewString()),
		ParticipantID: req.ParticipantID,
		DependentID:   dependentID,
		PlanID:        plan.ID,
		OptionID:      option.ID,
		Coverage:      req.Coverage,
		EffectiveDate: req.EffectiveDate,
	}

	split := ComputeContribution(rate.Amount, plan.Contribution)
	entry := openingEntry(enrollment, *rate, split, req.EffectiveDate)
	return enrollment, entry, nil
}

// materializeSingle handles composite and other plans: one enrollment for
// the selected option.
func (m *Materializer) materializeSingle(
	ctx context.Context,
	plan Plan,
	participant Participant,
	req EnrollmentRequest,
) ([]Enrollment, []RateHistoryEntry, error) {

	if plan.Type == PlanComposite && req.OptionID == "" {
		return nil, nil, newValidationError("composite plan enrollment requires a plan option selection")
	}

	rates, err := m.Store.CandidateRates(ctx, plan.ID, req.OptionID)
	if err != nil {
		return nil, nil, err
	}
	rate := ResolveRate(rates, req.EffectiveDate)
	if rate == nil && plan.Type == PlanComposite {
		return nil, nil, &NoActiveRateError{PlanID: plan.ID, OptionID: req.OptionID, At: req.EffectiveDate}
	}

	enrollment := Enrollment{
		ID:            EnrollmentID(uuid.NewString()),
		ParticipantID: participant.ID,
		PlanID:        plan.ID,
		OptionID:      req.OptionID,
		Coverage:      req.Coverage,
		EffectiveDate: req.EffectiveDate,
	}

	// Other-type plans may legitimately have no priced rate; they get an
	// enrollment without an opening history entry.
	if rate == nil {
		return []Enrollment{enrollment}, nil, nil
	}

	policy := PolicyFor(plan, *rate, participant.Class)
	split := ComputeContribution(rate.Amount, policy)
	entry := openingEntry(enrollment, *rate, split, req.EffectiveDate)
	return []Enrollment{enrollment}, []RateHistoryEntry{entry}, nil
}

// ExtendForDependent re-invokes materialization when a dependent is added
// after initial enrollment: every existing age-banded employee enrollment
// whose coverage selection already implies the dependent's class silently
// gains a record for the new dependent. Existing (plan, dependent)
// enrollments are never duplicated.
func (m *Materializer) ExtendForDependent(ctx context.Context, participantID ParticipantID, dependentID DependentID) ([]Enrollment, error) {
	dependents, err := m.Store.Dependents(ctx, participantID)
	if err != nil {
		return nil, err
	}
	var dep *Dependent
	for i := range dependents {
		if dependents[i].ID == dependentID {
			dep = &dependents[i]
			break
		}
	}
	if dep == nil {
		return nil, ErrDependentNotFound
	}

	existing, err := m.Store.ParticipantEnrollments(ctx, participantID)
	if err != nil {
		return nil, err
	}

	enrolledPlans := make(map[PlanID]bool)
	for _, e := range existing {
		if e.DependentID == dependentID {
			enrolledPlans[e.PlanID] = true
		}
	}

	today := m.now()
	var created []Enrollment

	for _, e := range existing {
		if e.DependentID != "" || !e.Coverage.Covers(dep.Relationship) || !e.ActiveAt(today) {
			continue
		}
		if enrolledPlans[e.PlanID] {
			continue // already covered under this plan
		}

		plan, err := m.Store.Plan(ctx, e.PlanID)
		if err != nil {
			return created, err
		}
		if plan == nil || plan.Type != PlanAgeBanded || plan.TerminatedBefore(today) {
			continue
		}
		if dep.DOB == nil {
			return created, newValidationError(fmt.Sprintf("dependent %s has no date of birth", dep.ID))
		}

		options, err := m.Store.PlanOptions(ctx, plan.ID)
		if err != nil {
			return created, err
		}

		req := EnrollmentRequest{
			ParticipantID: participantID,
			PlanID:        plan.ID,
			Coverage:      e.Coverage,
			EffectiveDate: today,
		}
		enrollment, entry, err := m.bindPerson(ctx, *plan, req, *dep.DOB, dep.ID, options, today)
		if err != nil {
			return created, err
		}

		err = m.Store.WithPlanTx(ctx, plan.ID, func(s Store) error {
			if err := s.CreateEnrollments(ctx, []Enrollment{enrollment}); err != nil {
				return err
			}
			return s.AppendRateHistory(ctx, []RateHistoryEntry{entry})
		})
		if err != nil {
			return created, err
		}

		enrolledPlans[plan.ID] = true
		created = append(created, enrollment)

		m.Log.WithFields(logrus.Fields{
			"participant": participantID,
			"dependent":   dependentID,
			"plan":        plan.ID,
		}).Info("enrollment extended for new dependent")
	}

	return created, nil
}

func hasRelationship(deps []Dependent, rel Relationship) bool {
	for _, d := range deps {
		if d.Relationship == rel {
			return true
		}
	}
	return false
}

// openingEntry builds the history entry written when an enrollment is
// created: open-ended from the effective date, with the split captured now.
func openingEntry(e Enrollment, rate Rate, split Contribution, effective Date) RateHistoryEntry {
	return RateHistoryEntry{
		ID:               HistoryID(uuid.NewString()),
		EnrollmentID:     e.ID,
		RateID:           rate.ID,
		Start:            effective,
		RateAmount:       rate.Amount,
		ContributionType: split.Type,
		EmployerAmount:   split.Employer,
		EmployeeAmount:   split.Employee,
	}
}
