/*
Package factory provides JSON to Go plan conversion.

PURPOSE:
  Converts JSON plan definitions into engine.Plan, PlanOption, and Rate
  objects. This enables plan configuration without code changes - account
  managers can define a carrier's plan with its bands and rate table in
  JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can load carrier rate sheets
  - Easy integration with admin UI
  - Version control for plan definitions
  - Database storage of plan configs

JSON SCHEMA:
  {
    "id": "plan-medical-2025",
    "group_id": "grp-acme",
    "name": "Acme Medical",
    "family": "group",
    "type": "age_banded",
    "effective_date": "2025-01-01",
    "contribution": {"type": "percentage", "value": "50"},
    "options": [
      {
        "label": "30",
        "rates": [
          {"start": "2025-01-01", "amount": "100"}
        ]
      }
    ],
    "rates": []
  }

  Top-level "rates" are plan-level prices for Medicare plans; group plans
  price through their options.

KEY FEATURES:
  - Validates structure (family, type, contribution, date formats)
  - Generates IDs for options and rates when omitted
  - Decodes per-class contribution overrides on composite rates
  - Round-trips back to JSON for the admin UI

USAGE:
  factory := NewPlanFactory()

  plan, options, rates, err := factory.ParsePlan(jsonString)
  if err != nil { ... }

  store.SavePlan(ctx, *plan)

SEE ALSO:
  - engine/types.go: Plan, PlanOption, Rate definitions
  - api/scenarios.go: preset plan definitions built on this factory
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coverline/benefits-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PlanJSON is the JSON representation of a plan with its options and rates.
type PlanJSON struct {
	ID              string            `json:"id,omitempty"`
	GroupID         string            `json:"group_id,omitempty"`
	Name            string            `json:"name"`
	Family          string            `json:"family"`
	Type            string            `json:"type"`
	EffectiveDate   string            `json:"effective_date"`
	TerminationDate string            `json:"termination_date,omitempty"`
	Contribution    ContributionJSON  `json:"contribution"`
	Options         []OptionJSON      `json:"options,omitempty"`
	Rates           []RateJSON        `json:"rates,omitempty"` // plan-level (Medicare)
}

// ContributionJSON represents an employer contribution policy.
type ContributionJSON struct {
	Type  string `json:"type"`  // percentage, dollar
	Value string `json:"value"` // decimal string, never floats
}

// OptionJSON represents a plan option with its rate table.
type OptionJSON struct {
	ID    string     `json:"id,omitempty"`
	Label string     `json:"label"`
	Rates []RateJSON `json:"rates,omitempty"`
}

// RateJSON represents one time-bounded price.
type RateJSON struct {
	ID                 string                      `json:"id,omitempty"`
	Start              string                      `json:"start"`
	End                string                      `json:"end,omitempty"`
	Amount             string                      `json:"amount"`
	ClassContributions map[int]ContributionJSON    `json:"class_contributions,omitempty"`
}

// =============================================================================
// PLAN FACTORY
// =============================================================================

// PlanFactory converts JSON plan definitions to Go structs.
type PlanFactory struct{}

// NewPlanFactory creates a new plan factory.
func NewPlanFactory() *PlanFactory {
	return &PlanFactory{}
}

// ParsePlan parses a JSON string into a plan, its options, and its rates.
func (f *PlanFactory) ParsePlan(jsonStr string) (*engine.Plan, []engine.PlanOption, []engine.Rate, error) {
	var pj PlanJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PlanJSON to engine structs, generating IDs where omitted.
func (f *PlanFactory) FromJSON(pj PlanJSON) (*engine.Plan, []engine.PlanOption, []engine.Rate, error) {
	family := engine.PlanFamily(pj.Family)
	if !family.Valid() {
		return nil, nil, nil, fmt.Errorf("unknown plan family %q", pj.Family)
	}
	planType := engine.PlanType(pj.Type)
	if !planType.Valid() {
		return nil, nil, nil, fmt.Errorf("unknown plan type %q", pj.Type)
	}
	if pj.Name == "" {
		return nil, nil, nil, fmt.Errorf("plan name is required")
	}
	if family == engine.FamilyGroup && pj.GroupID == "" {
		return nil, nil, nil, fmt.Errorf("group plans require group_id")
	}
	if family == engine.FamilyMedicare && len(pj.Options) > 0 {
		return nil, nil, nil, fmt.Errorf("medicare plans carry rates directly, not options")
	}

	effective, err := engine.ParseDate(pj.EffectiveDate)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid effective_date: %w", err)
	}
	var termination *engine.Date
	if pj.TerminationDate != "" {
		d, err := engine.ParseDate(pj.TerminationDate)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid termination_date: %w", err)
		}
		termination = &d
	}

	contribution, err := parseContribution(pj.Contribution)
	if err != nil {
		return nil, nil, nil, err
	}

	plan := &engine.Plan{
		ID:              engine.PlanID(orUUID(pj.ID)),
		GroupID:         engine.GroupID(pj.GroupID),
		Name:            pj.Name,
		Family:          family,
		Type:            planType,
		EffectiveDate:   effective,
		TerminationDate: termination,
		Contribution:    contribution,
	}

	var options []engine.PlanOption
	var rates []engine.Rate

	for _, oj := range pj.Options {
		if oj.Label == "" {
			return nil, nil, nil, fmt.Errorf("option label is required")
		}
		option := engine.PlanOption{
			ID:     engine.OptionID(orUUID(oj.ID)),
			PlanID: plan.ID,
			Label:  oj.Label,
		}
		options = append(options, option)

		for _, rj := range oj.Rates {
			r, err := parseRate(rj, plan.ID, option.ID)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("option %q: %w", oj.Label, err)
			}
			rates = append(rates, r)
		}
	}

	// Plan-level rates (empty option ID).
	for _, rj := range pj.Rates {
		r, err := parseRate(rj, plan.ID, "")
		if err != nil {
			return nil, nil, nil, err
		}
		rates = append(rates, r)
	}

	return plan, options, rates, nil
}

// ToJSON converts engine structs back to PlanJSON for the admin UI.
func (f *PlanFactory) ToJSON(plan engine.Plan, options []engine.PlanOption, rates []engine.Rate) PlanJSON {
	pj := PlanJSON{
		ID:            string(plan.ID),
		GroupID:       string(plan.GroupID),
		Name:          plan.Name,
		Family:        string(plan.Family),
		Type:          string(plan.Type),
		EffectiveDate: plan.EffectiveDate.String(),
		Contribution: ContributionJSON{
			Type:  string(plan.Contribution.Type),
			Value: plan.Contribution.Value.String(),
		},
	}
	if plan.TerminationDate != nil {
		pj.TerminationDate = plan.TerminationDate.String()
	}

	byOption := make(map[engine.OptionID][]RateJSON)
	for _, r := range rates {
		byOption[r.OptionID] = append(byOption[r.OptionID], rateToJSON(r))
	}

	for _, o := range options {
		pj.Options = append(pj.Options, OptionJSON{
			ID:    string(o.ID),
			Label: o.Label,
			Rates: byOption[o.ID],
		})
	}
	pj.Rates = byOption[""]

	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseContribution(cj ContributionJSON) (engine.ContributionPolicy, error) {
	t := engine.ContributionType(cj.Type)
	if !t.Valid() {
		return engine.ContributionPolicy{}, fmt.Errorf("unknown contribution type %q", cj.Type)
	}
	v, err := decimal.NewFromString(cj.Value)
	if err != nil {
		return engine.ContributionPolicy{}, fmt.Errorf("invalid contribution value %q: %w", cj.Value, err)
	}
	if v.IsNegative() {
		return engine.ContributionPolicy{}, fmt.Errorf("contribution value must not be negative")
	}
	return engine.ContributionPolicy{Type: t, Value: v}, nil
}

func parseRate(rj RateJSON, planID engine.PlanID, optionID engine.OptionID) (engine.Rate, error) {
	start, err := engine.ParseDate(rj.Start)
	if err != nil {
		return engine.Rate{}, fmt.Errorf("invalid rate start: %w", err)
	}
	var end *engine.Date
	if rj.End != "" {
		d, err := engine.ParseDate(rj.End)
		if err != nil {
			return engine.Rate{}, fmt.Errorf("invalid rate end: %w", err)
		}
		if d.Before(start) {
			return engine.Rate{}, fmt.Errorf("rate end %s precedes start %s", rj.End, rj.Start)
		}
		end = &d
	}
	amount, err := decimal.NewFromString(rj.Amount)
	if err != nil {
		return engine.Rate{}, fmt.Errorf("invalid rate amount %q: %w", rj.Amount, err)
	}

	r := engine.Rate{
		ID:       engine.RateID(orUUID(rj.ID)),
		PlanID:   planID,
		OptionID: optionID,
		Start:    start,
		End:      end,
		Amount:   amount,
	}

	for class, cj := range rj.ClassContributions {
		policy, err := parseContribution(cj)
		if err != nil {
			return engine.Rate{}, fmt.Errorf("class %d: %w", class, err)
		}
		if r.ClassContributions == nil {
			r.ClassContributions = make(map[int]engine.ContributionPolicy)
		}
		r.ClassContributions[class] = policy
	}

	return r, nil
}

// ParseRateJSON converts a single RateJSON into an engine.Rate bound to the
// given plan and option. Used when appending rates to an existing plan.
func ParseRateJSON(rj RateJSON, planID engine.PlanID, optionID engine.OptionID) (engine.Rate, error) {
	return parseRate(rj, planID, optionID)
}

func rateToJSON(r engine.Rate) RateJSON {
	rj := RateJSON{
		ID:     string(r.ID),
		Start:  r.Start.String(),
		Amount: r.Amount.String(),
	}
	if r.End != nil {
		rj.End = r.End.String()
	}
	for class, policy := range r.ClassContributions {
		if rj.ClassContributions == nil {
			rj.ClassContributions = make(map[int]ContributionJSON)
		}
		rj.ClassContributions[class] = ContributionJSON{
			Type:  string(policy.Type),
			Value: policy.Value.String(),
		}
	}
	return rj
}

func orUUID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
