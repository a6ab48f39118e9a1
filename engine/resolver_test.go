package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datePtr(s string) *Date {
	d := MustParseDate(s)
	return &d
}

func rate(id string, start string, end *Date, amount string) Rate {
	return Rate{
		ID:     RateID(id),
		PlanID: "plan-1",
		Start:  MustParseDate(start),
		End:    end,
		Amount: MustDecimal(amount),
	}
}

func TestResolveRate_IntervalContainment(t *testing.T) {
	// GIVEN: Rate A [2024-01-01, 2024-12-31] = $100
	//        Rate B [2025-01-01, open)      = $120
	a := rate("rate-a", "2024-01-01", datePtr("2024-12-31"), "100")
	b := rate("rate-b", "2025-01-01", nil, "120")
	candidates := []Rate{a, b}

	mid2024 := ResolveRate(candidates, MustParseDate("2024-06-01"))
	require.NotNil(t, mid2024)
	assert.Equal(t, RateID("rate-a"), mid2024.ID)

	in2025 := ResolveRate(candidates, MustParseDate("2025-03-01"))
	require.NotNil(t, in2025)
	assert.Equal(t, RateID("rate-b"), in2025.ID)

	// Before either interval: no rate, never a default.
	assert.Nil(t, ResolveRate(candidates, MustParseDate("2023-12-31")))
}

func TestResolveRate_BoundaryDatesInclusive(t *testing.T) {
	a := rate("rate-a", "2024-01-01", datePtr("2024-12-31"), "100")

	onStart := ResolveRate([]Rate{a}, MustParseDate("2024-01-01"))
	require.NotNil(t, onStart)

	onEnd := ResolveRate([]Rate{a}, MustParseDate("2024-12-31"))
	require.NotNil(t, onEnd)

	assert.Nil(t, ResolveRate([]Rate{a}, MustParseDate("2025-01-01")))
}

func TestResolveRate_OverlapTieBreaksOnLatestStart(t *testing.T) {
	// Overlapping rates shouldn't exist by convention, but the resolver
	// tolerates them: latest start wins.
	older := rate("rate-old", "2024-01-01", nil, "100")
	newer := rate("rate-new", "2024-07-01", nil, "110")

	resolved := ResolveRate([]Rate{older, newer}, MustParseDate("2024-09-01"))
	require.NotNil(t, resolved)
	assert.Equal(t, RateID("rate-new"), resolved.ID)

	// Before the newer rate starts the older one still applies.
	resolved = ResolveRate([]Rate{older, newer}, MustParseDate("2024-03-01"))
	require.NotNil(t, resolved)
	assert.Equal(t, RateID("rate-old"), resolved.ID)
}

func TestResolveRate_EmptyCandidates(t *testing.T) {
	assert.Nil(t, ResolveRate(nil, MustParseDate("2025-01-01")))
}

func TestResolveDisplayRate_ActiveTier(t *testing.T) {
	a := rate("rate-a", "2024-01-01", nil, "100")

	display := ResolveDisplayRate([]Rate{a}, MustParseDate("2025-06-01"))
	require.NotNil(t, display.Rate)
	assert.Equal(t, RateActive, display.Status)
	assert.Equal(t, RateID("rate-a"), display.Rate.ID)
}

func TestResolveDisplayRate_FallsBackToNearestPending(t *testing.T) {
	// GIVEN: no rate active today, two future rates
	// THEN: the nearest future one is shown as pending
	far := rate("rate-far", "2026-01-01", nil, "130")
	near := rate("rate-near", "2025-09-01", nil, "120")

	display := ResolveDisplayRate([]Rate{far, near}, MustParseDate("2025-06-01"))
	require.NotNil(t, display.Rate)
	assert.Equal(t, RatePending, display.Status)
	assert.Equal(t, RateID("rate-near"), display.Rate.ID)
}

func TestResolveDisplayRate_FallsBackToMostRecentEnded(t *testing.T) {
	old := rate("rate-2023", "2023-01-01", datePtr("2023-12-31"), "90")
	recent := rate("rate-2024", "2024-01-01", datePtr("2024-12-31"), "100")

	display := ResolveDisplayRate([]Rate{old, recent}, MustParseDate("2025-06-01"))
	require.NotNil(t, display.Rate)
	assert.Equal(t, RateEnded, display.Status)
	assert.Equal(t, RateID("rate-2024"), display.Rate.ID)
}

func TestResolveDisplayRate_NothingToShow(t *testing.T) {
	display := ResolveDisplayRate(nil, MustParseDate("2025-06-01"))
	assert.Nil(t, display.Rate)
	assert.Equal(t, RateNone, display.Status)
}
