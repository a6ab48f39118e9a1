package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeContribution_Percentage(t *testing.T) {
	split := ComputeContribution(MustDecimal("200"), ContributionPolicy{
		Type:  ContributionPercentage,
		Value: MustDecimal("50"),
	})

	assert.True(t, split.Employer.Equal(MustDecimal("100")), "employer = %s", split.Employer)
	assert.True(t, split.Employee.Equal(MustDecimal("100")), "employee = %s", split.Employee)
}

func TestComputeContribution_PercentageExtremes(t *testing.T) {
	rate := MustDecimal("150")

	full := ComputeContribution(rate, ContributionPolicy{Type: ContributionPercentage, Value: MustDecimal("100")})
	assert.True(t, full.Employer.Equal(rate))
	assert.True(t, full.Employee.IsZero())

	none := ComputeContribution(rate, ContributionPolicy{Type: ContributionPercentage, Value: decimal.Zero})
	assert.True(t, none.Employer.IsZero())
	assert.True(t, none.Employee.Equal(rate))
}

func TestComputeContribution_DollarClampedAtRate(t *testing.T) {
	// GIVEN: a $500 fixed employer contribution on a $120 rate
	// THEN: the employer pays the whole rate and the employee never goes negative
	split := ComputeContribution(MustDecimal("120"), ContributionPolicy{
		Type:  ContributionDollar,
		Value: MustDecimal("500"),
	})

	assert.True(t, split.Employer.Equal(MustDecimal("120")))
	assert.True(t, split.Employee.IsZero())
}

func TestComputeContribution_Dollar(t *testing.T) {
	split := ComputeContribution(MustDecimal("120"), ContributionPolicy{
		Type:  ContributionDollar,
		Value: MustDecimal("20"),
	})

	assert.True(t, split.Employer.Equal(MustDecimal("20")))
	assert.True(t, split.Employee.Equal(MustDecimal("100")))
}

func TestComputeContribution_SumAlwaysEqualsRate(t *testing.T) {
	rates := []string{"0", "0.01", "99.99", "120", "1234.56"}
	policies := []ContributionPolicy{
		{Type: ContributionPercentage, Value: MustDecimal("0")},
		{Type: ContributionPercentage, Value: MustDecimal("33.333")},
		{Type: ContributionPercentage, Value: MustDecimal("100")},
		{Type: ContributionDollar, Value: MustDecimal("0")},
		{Type: ContributionDollar, Value: MustDecimal("50")},
		{Type: ContributionDollar, Value: MustDecimal("100000")},
	}

	for _, r := range rates {
		rate := MustDecimal(r)
		for _, policy := range policies {
			split := ComputeContribution(rate, policy)
			assert.True(t, split.Employer.Add(split.Employee).Equal(rate),
				"employer+employee != rate for rate=%s policy=%+v", r, policy)
			assert.False(t, split.Employee.IsNegative(),
				"negative employee share for rate=%s policy=%+v", r, policy)
			assert.False(t, split.Employer.IsNegative(),
				"negative employer share for rate=%s policy=%+v", r, policy)
		}
	}
}

func TestComputeContribution_NegativeDollarClampedAtZero(t *testing.T) {
	split := ComputeContribution(MustDecimal("100"), ContributionPolicy{
		Type:  ContributionDollar,
		Value: MustDecimal("-25"),
	})

	assert.True(t, split.Employer.IsZero())
	assert.True(t, split.Employee.Equal(MustDecimal("100")))
}

func TestPolicyFor_CompositeClassOverride(t *testing.T) {
	plan := Plan{
		ID:           "plan-comp",
		Type:         PlanComposite,
		Contribution: ContributionPolicy{Type: ContributionPercentage, Value: MustDecimal("50")},
	}
	r := Rate{
		ID:     "rate-1",
		Amount: MustDecimal("400"),
		ClassContributions: map[int]ContributionPolicy{
			2: {Type: ContributionDollar, Value: MustDecimal("300")},
		},
	}

	// Class 2 has an override on the rate itself.
	policy := PolicyFor(plan, r, 2)
	assert.Equal(t, ContributionDollar, policy.Type)
	assert.True(t, policy.Value.Equal(MustDecimal("300")))

	// Class 1 has none: fall back to the plan-level policy.
	policy = PolicyFor(plan, r, 1)
	assert.Equal(t, ContributionPercentage, policy.Type)
	assert.True(t, policy.Value.Equal(MustDecimal("50")))
}

func TestPolicyFor_NonCompositeIgnoresOverrides(t *testing.T) {
	plan := Plan{
		ID:           "plan-ab",
		Type:         PlanAgeBanded,
		Contribution: ContributionPolicy{Type: ContributionPercentage, Value: MustDecimal("75")},
	}
	r := Rate{
		ClassContributions: map[int]ContributionPolicy{
			1: {Type: ContributionDollar, Value: MustDecimal("10")},
		},
	}

	policy := PolicyFor(plan, r, 1)
	assert.Equal(t, ContributionPercentage, policy.Type)
}
