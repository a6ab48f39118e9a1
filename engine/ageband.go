package engine

import (
	"sort"
	"strconv"
)

// =============================================================================
// AGE-BAND MATCHER - Maps an age to the correct rate bracket
// =============================================================================

// MatchAgeBand returns the plan option whose age-band label best matches the
// given age, or nil if no option label parses as an integer.
//
// Policy, applied identically for the employee and every dependent:
//  1. An option whose numeric label equals the age wins outright.
//  2. Otherwise the highest band with label <= age wins ("round down").
//  3. If the age is below every band, the lowest band wins (clamp).
func MatchAgeBand(age int, options []PlanOption) *PlanOption {
	type band struct {
		opt       PlanOption
		threshold int
	}

	var bands []band
	for _, opt := range options {
		n, err := strconv.Atoi(opt.Label)
		if err != nil {
			continue // non-numeric labels don't participate
		}
		if n == age {
			matched := opt
			return &matched
		}
		bands = append(bands, band{opt: opt, threshold: n})
	}
	if len(bands) == 0 {
		return nil
	}

	sort.Slice(bands, func(i, j int) bool { return bands[i].threshold > bands[j].threshold })

	for _, b := range bands {
		if b.threshold <= age {
			matched := b.opt
			return &matched
		}
	}

	// Age below every band: clamp to the lowest.
	matched := bands[len(bands)-1].opt
	return &matched
}
