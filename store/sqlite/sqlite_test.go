package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverline/benefits-engine/engine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dp(t *testing.T, s string) *engine.Date {
	t.Helper()
	d, err := engine.ParseDate(s)
	require.NoError(t, err)
	return &d
}

func TestStore_PlanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	plan := engine.Plan{
		ID:              "plan-1",
		GroupID:         "grp-1",
		Name:            "Group Medical",
		Family:          engine.FamilyGroup,
		Type:            engine.PlanAgeBanded,
		EffectiveDate:   engine.MustParseDate("2024-01-01"),
		TerminationDate: dp(t, "2026-12-31"),
		Contribution:    engine.ContributionPolicy{Type: engine.ContributionPercentage, Value: engine.MustDecimal("50")},
	}
	require.NoError(t, s.SavePlan(ctx, plan))

	got, err := s.Plan(ctx, "plan-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, plan.Name, got.Name)
	assert.Equal(t, plan.Type, got.Type)
	assert.Equal(t, "2024-01-01", got.EffectiveDate.String())
	require.NotNil(t, got.TerminationDate)
	assert.Equal(t, "2026-12-31", got.TerminationDate.String())
	assert.True(t, got.Contribution.Value.Equal(engine.MustDecimal("50")))

	missing, err := s.Plan(ctx, "plan-nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_CandidateRatesByOption(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOption(ctx, engine.PlanOption{ID: "opt-30", PlanID: "plan-1", Label: "30"}))
	require.NoError(t, s.SaveRate(ctx, engine.Rate{
		ID: "rate-1", PlanID: "plan-1", OptionID: "opt-30",
		Start: engine.MustParseDate("2024-01-01"), End: dp(t, "2024-12-31"),
		Amount: engine.MustDecimal("100"),
	}))
	require.NoError(t, s.SaveRate(ctx, engine.Rate{
		ID: "rate-2", PlanID: "plan-1", OptionID: "opt-30",
		Start:  engine.MustParseDate("2025-01-01"),
		Amount: engine.MustDecimal("120"),
		ClassContributions: map[int]engine.ContributionPolicy{
			2: {Type: engine.ContributionDollar, Value: engine.MustDecimal("30")},
		},
	}))
	// A plan-level (Medicare style) rate must not leak into option queries.
	require.NoError(t, s.SaveRate(ctx, engine.Rate{
		ID: "rate-plan", PlanID: "plan-1",
		Start: engine.MustParseDate("2025-01-01"), Amount: engine.MustDecimal("999"),
	}))

	rates, err := s.CandidateRates(ctx, "plan-1", "opt-30")
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, engine.RateID("rate-1"), rates[0].ID)
	require.NotNil(t, rates[0].End)
	assert.Equal(t, "2024-12-31", rates[0].End.String())
	assert.Nil(t, rates[1].End)
	require.Contains(t, rates[1].ClassContributions, 2)
	assert.True(t, rates[1].ClassContributions[2].Value.Equal(engine.MustDecimal("30")))

	planLevel, err := s.CandidateRates(ctx, "plan-1", "")
	require.NoError(t, err)
	require.Len(t, planLevel, 1)
	assert.Equal(t, engine.RateID("rate-plan"), planLevel[0].ID)
}

func TestStore_ActiveEnrollmentsFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveParticipant(ctx, engine.Participant{
		ID: "emp-1", GroupID: "grp-1", Name: "Active", DOB: dp(t, "1984-03-01"),
	}))
	require.NoError(t, s.SaveParticipant(ctx, engine.Participant{
		ID: "emp-gone", GroupID: "grp-1", Name: "Terminated",
		TerminationDate: dp(t, "2024-06-30"),
	}))

	require.NoError(t, s.CreateEnrollments(ctx, []engine.Enrollment{
		{ID: "enr-active", ParticipantID: "emp-1", PlanID: "plan-1",
			EffectiveDate: engine.MustParseDate("2024-01-01")},
		{ID: "enr-ended", ParticipantID: "emp-1", PlanID: "plan-1",
			EffectiveDate:   engine.MustParseDate("2024-01-01"),
			TerminationDate: dp(t, "2024-09-30")},
		{ID: "enr-future", ParticipantID: "emp-1", PlanID: "plan-1",
			EffectiveDate: engine.MustParseDate("2026-01-01")},
		{ID: "enr-terminated-emp", ParticipantID: "emp-gone", PlanID: "plan-1",
			EffectiveDate: engine.MustParseDate("2024-01-01")},
	}))

	active, err := s.ActiveEnrollments(ctx, "plan-1", engine.MustParseDate("2025-01-01"))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, engine.EnrollmentID("enr-active"), active[0].ID)
}

func TestStore_RateHistoryAppendAndClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := engine.RateHistoryEntry{
		ID:               "hist-1",
		EnrollmentID:     "enr-1",
		RateID:           "rate-1",
		Start:            engine.MustParseDate("2024-01-01"),
		RateAmount:       engine.MustDecimal("100"),
		ContributionType: engine.ContributionDollar,
		EmployerAmount:   engine.MustDecimal("20"),
		EmployeeAmount:   engine.MustDecimal("80"),
	}
	require.NoError(t, s.AppendRateHistory(ctx, []engine.RateHistoryEntry{entry}))

	open, err := s.OpenRateHistory(ctx, "enr-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].RateAmount.Equal(engine.MustDecimal("100")))

	require.NoError(t, s.CloseRateHistory(ctx, "hist-1", engine.MustParseDate("2024-12-31")))

	open, err = s.OpenRateHistory(ctx, "enr-1")
	require.NoError(t, err)
	assert.Empty(t, open)

	// Closing twice is an error: the entry is no longer open.
	assert.Error(t, s.CloseRateHistory(ctx, "hist-1", engine.MustParseDate("2025-06-30")))

	all, err := s.RateHistory(ctx, "enr-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].End)
	assert.Equal(t, "2024-12-31", all[0].End.String())
}

func TestStore_WithPlanTxRollsBack(t *testing.T) {
	// GIVEN: a transaction that writes an enrollment then fails
	// THEN: nothing is persisted

	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithPlanTx(ctx, "plan-1", func(tx engine.Store) error {
		if err := tx.CreateEnrollments(ctx, []engine.Enrollment{
			{ID: "enr-tx", ParticipantID: "emp-1", PlanID: "plan-1",
				EffectiveDate: engine.MustParseDate("2024-01-01")},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	enrollments, err := s.ParticipantEnrollments(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, enrollments)
}

func TestStore_MaterializeEndToEnd(t *testing.T) {
	// The engine runs unchanged over the SQLite store.
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlan(ctx, engine.Plan{
		ID: "plan-ab", GroupID: "grp-1", Name: "Medical",
		Family: engine.FamilyGroup, Type: engine.PlanAgeBanded,
		EffectiveDate: engine.MustParseDate("2024-01-01"),
		Contribution:  engine.ContributionPolicy{Type: engine.ContributionPercentage, Value: engine.MustDecimal("50")},
	}))
	require.NoError(t, s.SaveOption(ctx, engine.PlanOption{ID: "opt-40", PlanID: "plan-ab", Label: "40"}))
	require.NoError(t, s.SaveRate(ctx, engine.Rate{
		ID: "rate-40", PlanID: "plan-ab", OptionID: "opt-40",
		Start: engine.MustParseDate("2025-01-01"), Amount: engine.MustDecimal("150"),
	}))
	require.NoError(t, s.SaveParticipant(ctx, engine.Participant{
		ID: "emp-1", GroupID: "grp-1", Name: "Avery", DOB: dp(t, "1984-03-01"),
	}))

	mat := engine.NewMaterializer(s)
	mat.Now = func() engine.Date { return engine.MustParseDate("2025-06-15") }

	enrollments, err := mat.Materialize(ctx, engine.EnrollmentRequest{
		ParticipantID: "emp-1",
		PlanID:        "plan-ab",
		Coverage:      engine.CoverEmployeeOnly,
		EffectiveDate: engine.MustParseDate("2025-07-01"),
	})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)

	open, err := s.OpenRateHistory(ctx, enrollments[0].ID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].EmployerAmount.Equal(engine.MustDecimal("75")))
}

func TestStore_RenewalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := engine.Renewal{
		ID:      "ren-1",
		Date:    engine.MustParseDate("2025-01-01"),
		PlanIDs: []engine.PlanID{"plan-a", "plan-b"},
		Status:  engine.RenewalPending,
	}
	require.NoError(t, s.SaveRenewal(ctx, r))

	due, err := s.DueRenewals(ctx, engine.MustParseDate("2025-01-01"))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, []engine.PlanID{"plan-a", "plan-b"}, due[0].PlanIDs)

	// Not due before its date.
	due, err = s.DueRenewals(ctx, engine.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	assert.Empty(t, due)

	// Marking processed takes it off the due list and persists the report.
	r.Status = engine.RenewalProcessed
	r.Report = &engine.RenewalReport{Succeeded: 3, Skipped: 1}
	require.NoError(t, s.SaveRenewal(ctx, r))

	due, err = s.DueRenewals(ctx, engine.MustParseDate("2025-06-01"))
	require.NoError(t, err)
	assert.Empty(t, due)

	got, err := s.GetRenewal(ctx, "ren-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.RenewalProcessed, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, 3, got.Report.Succeeded)
}

func TestStore_DeletePlanRemovesOptionsAndRates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePlan(ctx, engine.Plan{
		ID: "plan-1", GroupID: "grp-1", Name: "Doomed",
		Family: engine.FamilyGroup, Type: engine.PlanComposite,
		EffectiveDate: engine.MustParseDate("2024-01-01"),
		Contribution:  engine.ContributionPolicy{Type: engine.ContributionPercentage, Value: engine.MustDecimal("0")},
	}))
	require.NoError(t, s.SaveOption(ctx, engine.PlanOption{ID: "opt-1", PlanID: "plan-1", Label: "Employee Only"}))
	require.NoError(t, s.SaveRate(ctx, engine.Rate{
		ID: "rate-1", PlanID: "plan-1", OptionID: "opt-1",
		Start: engine.MustParseDate("2024-01-01"), Amount: engine.MustDecimal("10"),
	}))

	count, err := s.EnrollmentCount(ctx, "plan-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.DeletePlan(ctx, "plan-1"))

	plan, err := s.Plan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Nil(t, plan)

	options, err := s.PlanOptions(ctx, "plan-1")
	require.NoError(t, err)
	assert.Empty(t, options)

	rates, err := s.RatesForPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Empty(t, rates)
}
