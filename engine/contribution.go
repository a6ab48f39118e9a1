/*
contribution.go - Employer/employee cost split

PURPOSE:
  Given a resolved rate and a contribution policy, computes how the cost
  splits between employer and employee.

GUARANTEES (for any policy and any non-negative rate):
  - EmployerAmount + EmployeeAmount == rate
  - EmployeeAmount >= 0 (dollar policies are clamped at the rate)

COMPOSITE PLANS:
  The rate record may carry per-class overrides; the participant's class
  number selects one. Absent an override for that class, the plan-level
  policy applies. See PolicyFor.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Contribution is the employer/employee split for one rate amount.
type Contribution struct {
	Type     ContributionType
	Employer decimal.Decimal
	Employee decimal.Decimal
}

// ComputeContribution splits a rate amount under the given policy.
//
//	Percentage p: employer = rate * p / 100
//	Dollar v:     employer = min(v, rate), clamped at zero
//
// Employee is always rate - employer, floored at zero.
func ComputeContribution(rate decimal.Decimal, policy ContributionPolicy) Contribution {
	var employer decimal.Decimal

	switch policy.Type {
	case ContributionPercentage:
		employer = rate.Mul(policy.Value).Div(hundred)
	case ContributionDollar:
		employer = decimal.Min(policy.Value, rate)
	default:
		employer = decimal.Zero
	}

	if employer.IsNegative() {
		employer = decimal.Zero
	}
	if employer.GreaterThan(rate) {
		employer = rate
	}

	employee := rate.Sub(employer)
	if employee.IsNegative() {
		employee = decimal.Zero
	}

	return Contribution{Type: policy.Type, Employer: employer, Employee: employee}
}

// PolicyFor selects the contribution policy that governs an enrollment:
// for composite plans the rate's own per-class override when one exists for
// the participant's class, otherwise the plan-level policy.
func PolicyFor(plan Plan, rate Rate, class int) ContributionPolicy {
	if plan.Type == PlanComposite {
		if override, ok := rate.ClassContributions[class]; ok && override.Type.Valid() {
			return override
		}
	}
	return plan.Contribution
}
