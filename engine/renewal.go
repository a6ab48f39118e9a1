/*
renewal.go - Bulk re-rating at a renewal date

PURPOSE:
  Given a renewal date and a set of plans, finds every enrollment active at
  that date, re-resolves the rate that applies going forward, and rolls the
  rate history: the open entry is closed the day before the renewal and a
  new open entry starts on the renewal date with freshly computed
  contribution amounts.

FAILURE MODEL:
  - Per-enrollment resolution failures (rate-table gaps, missing DOBs) are
    collected into the report; the rest of the batch proceeds.
  - History mutations are transactional PER PLAN: all of a plan's
    enrollments move to the new rate together or none do.
  - An enrollment with more than one open history entry is corrupt data;
    the plan's transaction is aborted and the violation reported, never
    silently repaired.

IDEMPOTENCE:
  An enrollment whose open entry already starts on the renewal date has
  been renewed; it is counted as skipped and untouched. Re-running a
  renewal is therefore a no-op.

STATE MACHINE (per enrollment):
  [no history] -> Active(open) -> Active(closed)+Active(open) -> ...
  Driven only by enrollment creation and renewal events.
*/
package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RenewalProcessor re-binds active enrollments to renewal-date rates.
type RenewalProcessor struct {
	Store TxStore
	Log   logrus.FieldLogger

	// Now is the clock used for age-band matching. Defaults to Today.
	Now func() Date
}

// NewRenewalProcessor creates a processor over the given store.
func NewRenewalProcessor(store TxStore) *RenewalProcessor {
	return &RenewalProcessor{
		Store: store,
		Log:   logrus.WithField("module", "renewal"),
		Now:   Today,
	}
}

func (p *RenewalProcessor) now() Date {
	if p.Now != nil {
		return p.Now()
	}
	return Today()
}

// Process runs the renewal for every given plan and returns the report.
// The returned error is non-nil only for storage-level failures; rate
// resolution failures and invariant violations are reported, not raised.
func (p *RenewalProcessor) Process(ctx context.Context, renewalDate Date, planIDs []PlanID) (*RenewalReport, error) {
	report := &RenewalReport{}

	for _, planID := range planIDs {
		plan, err := p.Store.Plan(ctx, planID)
		if err != nil {
			return report, err
		}
		if plan == nil {
			report.Failures = append(report.Failures, RenewalFailure{
				PlanID: planID,
				Reason: "plan not found",
			})
			continue
		}
		if plan.TerminatedBefore(renewalDate) {
			p.Log.WithFields(logrus.Fields{"plan": planID, "renewal": renewalDate.String()}).
				Warn("plan terminated before renewal date, skipping")
			continue
		}

		// Counts accumulate per plan and merge only on commit, so an
		// aborted plan contributes nothing but its failure.
		planReport := &RenewalReport{}
		err = p.Store.WithPlanTx(ctx, planID, func(s Store) error {
			return p.renewPlan(ctx, s, *plan, renewalDate, planReport)
		})
		if err != nil {
			var violation *OpenEntryViolationError
			if errors.As(err, &violation) {
				// Corrupt history. The plan's transaction has rolled back;
				// report it and keep going with the other plans.
				p.Log.WithFields(logrus.Fields{
					"plan":       planID,
					"enrollment": violation.EnrollmentID,
					"open":       violation.Count,
				}).Error("open history invariant violated, plan renewal aborted")
				report.Failures = append(report.Failures, RenewalFailure{
					PlanID:       planID,
					EnrollmentID: violation.EnrollmentID,
					Reason:       violation.Error(),
				})
				continue
			}
			return report, err
		}

		report.Succeeded += planReport.Succeeded
		report.Skipped += planReport.Skipped
		report.Failures = append(report.Failures, planReport.Failures...)
	}

	p.Log.WithFields(logrus.Fields{
		"renewal":   renewalDate.String(),
		"plans":     len(planIDs),
		"succeeded": report.Succeeded,
		"skipped":   report.Skipped,
		"failed":    len(report.Failures),
	}).Info("renewal processed")

	return report, nil
}

// renewPlan processes one plan inside its transaction. Per-enrollment
// resolution failures go to the report; only storage errors and invariant
// violations abort the transaction.
func (p *RenewalProcessor) renewPlan(ctx context.Context, s Store, plan Plan, renewalDate Date, report *RenewalReport) error {
	enrollments, err := s.ActiveEnrollments(ctx, plan.ID, renewalDate)
	if err != nil {
		return err
	}
	if len(enrollments) == 0 {
		return nil
	}

	options, err := s.PlanOptions(ctx, plan.ID)
	if err != nil {
		return err
	}

	participants := make(map[ParticipantID]*Participant)
	dependents := make(map[ParticipantID][]Dependent)
	today := p.now()

	for _, e := range enrollments {
		open, err := s.OpenRateHistory(ctx, e.ID)
		if err != nil {
			return err
		}
		if len(open) > 1 {
			return &OpenEntryViolationError{EnrollmentID: e.ID, Count: len(open)}
		}
		if len(open) == 1 && open[0].Start.Equal(renewalDate) {
			report.Skipped++
			continue
		}

		participant := participants[e.ParticipantID]
		if participant == nil {
			participant, err = s.Participant(ctx, e.ParticipantID)
			if err != nil {
				return err
			}
			if participant == nil {
				report.Failures = append(report.Failures, failure(plan, e, "participant not found"))
				continue
			}
			participants[e.ParticipantID] = participant
		}

		rate, reason := p.resolveForward(ctx, s, plan, e, *participant, options, dependents, renewalDate, today)
		if rate == nil {
			report.Failures = append(report.Failures, failure(plan, e, reason))
			continue
		}

		policy := PolicyFor(plan, *rate, participant.Class)
		amount := e.ChargedAmount(rate.Amount)
		split := ComputeContribution(amount, policy)

		if len(open) == 1 {
			if err := s.CloseRateHistory(ctx, open[0].ID, renewalDate.AddDays(-1)); err != nil {
				return err
			}
		}
		entry := RateHistoryEntry{
			ID:               HistoryID(uuid.NewString()),
			EnrollmentID:     e.ID,
			RateID:           rate.ID,
			Start:            renewalDate,
			RateAmount:       amount,
			ContributionType: split.Type,
			EmployerAmount:   split.Employer,
			EmployeeAmount:   split.Employee,
		}
		if err := s.AppendRateHistory(ctx, []RateHistoryEntry{entry}); err != nil {
			return err
		}
		report.Succeeded++
	}

	return nil
}

// resolveForward re-runs the same resolution used at materialization time:
// age-band matching (against the person's current age) for age-banded
// plans, then temporal resolution at the renewal date. Returns the rate or
// a human-readable failure reason.
func (p *RenewalProcessor) resolveForward(
	ctx context.Context,
	s Store,
	plan Plan,
	e Enrollment,
	participant Participant,
	options []PlanOption,
	dependents map[ParticipantID][]Dependent,
	renewalDate Date,
	today Date,
) (*Rate, string) {

	optionID := e.OptionID

	if plan.Type == PlanAgeBanded {
		dob := participant.DOB
		if e.DependentID != "" {
			deps, ok := dependents[e.ParticipantID]
			if !ok {
				loaded, err := s.Dependents(ctx, e.ParticipantID)
				if err != nil {
					return nil, err.Error()
				}
				dependents[e.ParticipantID] = loaded
				deps = loaded
			}
			dob = nil
			for _, d := range deps {
				if d.ID == e.DependentID {
					dob = d.DOB
					break
				}
			}
		}
		if dob == nil {
			return nil, "missing date of birth for age-band matching"
		}

		option := MatchAgeBand(AgeOn(*dob, today), options)
		if option == nil {
			return nil, (&NoAgeBandError{PlanID: plan.ID, Age: AgeOn(*dob, today)}).Error()
		}
		optionID = option.ID
	}

	rates, err := s.CandidateRates(ctx, plan.ID, optionID)
	if err != nil {
		return nil, err.Error()
	}
	rate := ResolveRate(rates, renewalDate)
	if rate == nil {
		return nil, (&NoActiveRateError{PlanID: plan.ID, OptionID: optionID, At: renewalDate}).Error()
	}
	return rate, ""
}

func failure(plan Plan, e Enrollment, reason string) RenewalFailure {
	return RenewalFailure{
		PlanID:        plan.ID,
		ParticipantID: e.ParticipantID,
		EnrollmentID:  e.ID,
		Reason:        reason,
	}
}
