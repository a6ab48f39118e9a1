/*
resolver.go - Temporal rate resolution

PURPOSE:
  Answers "which rate applies at date d" for a set of candidate rates.
  Two distinct questions live here and must never be conflated:

  1. BINDING resolution (ResolveRate): the rate that binds an enrollment or
     a renewal. Strict interval containment only. No fallback. A miss is a
     hard validation failure for the caller, never a default of zero.

  2. DISPLAY resolution (ResolveDisplayRate): what the UI shows as "the
     current rate" when nothing is active today. Falls back Active ->
     nearest Pending -> most recent Ended. Read-only; never used when
     materializing a binding enrollment.

DATE SEMANTICS:
  All comparisons are calendar-date comparisons (see date.go). A rate with
  End == nil is open-ended.
*/
package engine

// ResolveRate returns the single rate active at d, or nil if no candidate's
// interval contains d.
//
// A rate qualifies when Start <= d and (End == nil or End >= d). Candidate
// intervals are non-overlapping by convention, but overlaps are tolerated
// defensively: the qualifying rate with the latest Start wins (most recently
// effective).
func ResolveRate(candidates []Rate, d Date) *Rate {
	var best *Rate
	for i := range candidates {
		r := &candidates[i]
		if !r.ActiveAt(d) {
			continue
		}
		if best == nil || r.Start.After(best.Start) {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	resolved := *best
	return &resolved
}

// RateStatus classifies a display-resolved rate relative to today.
type RateStatus string

const (
	RateActive  RateStatus = "active"
	RatePending RateStatus = "pending"
	RateEnded   RateStatus = "ended"
	RateNone    RateStatus = "none"
)

// DisplayRate is a UI-facing resolution result.
type DisplayRate struct {
	Rate   *Rate
	Status RateStatus
}

// ResolveDisplayRate applies the three-tier display fallback for "what rate
// applies right now" queries:
//
//	(1) the rate active today; else
//	(2) the nearest future pending rate (smallest Start > today); else
//	(3) the most recent ended rate (largest Start among those ended).
//
// Display only. Binding resolution goes through ResolveRate.
func ResolveDisplayRate(candidates []Rate, today Date) DisplayRate {
	if active := ResolveRate(candidates, today); active != nil {
		return DisplayRate{Rate: active, Status: RateActive}
	}

	var pending *Rate
	for i := range candidates {
		r := &candidates[i]
		if !r.Start.After(today) {
			continue
		}
		if pending == nil || r.Start.Before(pending.Start) {
			pending = r
		}
	}
	if pending != nil {
		resolved := *pending
		return DisplayRate{Rate: &resolved, Status: RatePending}
	}

	var ended *Rate
	for i := range candidates {
		r := &candidates[i]
		if !r.EndedBefore(today) {
			continue
		}
		if ended == nil || r.Start.After(ended.Start) {
			ended = r
		}
	}
	if ended != nil {
		resolved := *ended
		return DisplayRate{Rate: &resolved, Status: RateEnded}
	}

	return DisplayRate{Status: RateNone}
}
