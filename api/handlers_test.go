/*
handlers_test.go - HTTP-level tests for API handlers

Tests run against the real router and an in-memory SQLite store, covering:
- Group and participant CRUD
- Plan creation from JSON and delete protection
- Enrollment fan-out and error mapping
- Current-rate display resolution
- Renewal scheduling and processing
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverline/benefits-engine/engine"
	"github.com/coverline/benefits-engine/factory"
	"github.com/coverline/benefits-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestAPI(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store)
	return h, NewRouter(h)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

// exactYearsAgo returns a DOB string for someone who turns the given age today.
func exactYearsAgo(years int) string {
	return engine.Today().AddYears(-years).String()
}

// seedGroupPlan creates a group, an age-banded plan with bands 30/40/50, and a
// participant of the given age, all through the API.
func seedGroupPlan(t *testing.T, router http.Handler, age int) {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/groups", map[string]string{"id": "grp-1", "name": "Test Group"})
	require.Equal(t, http.StatusCreated, rec.Code)

	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	planDef := fmt.Sprintf(`{
		"config": {
			"id": "plan-1",
			"group_id": "grp-1",
			"name": "Test Medical",
			"family": "group",
			"type": "age_banded",
			"effective_date": "%[1]s",
			"contribution": {"type": "percentage", "value": "50"},
			"options": [
				{"id": "opt-30", "label": "30", "rates": [{"start": "%[1]s", "amount": "100.00"}]},
				{"id": "opt-40", "label": "40", "rates": [{"start": "%[1]s", "amount": "150.00"}]},
				{"id": "opt-50", "label": "50", "rates": [{"start": "%[1]s", "amount": "200.00"}]}
			]
		}
	}`, jan1)
	req := httptest.NewRequest("POST", "/api/plans", bytes.NewBufferString(planDef))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "POST", "/api/participants", map[string]any{
		"id": "emp-1", "group_id": "grp-1", "name": "Test Employee",
		"dob": exactYearsAgo(age), "class": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
}

// =============================================================================
// GROUPS AND PARTICIPANTS
// =============================================================================

func TestAPI_GroupLifecycle(t *testing.T) {
	// GIVEN: A fresh server
	_, router := newTestAPI(t)

	// WHEN: Creating and fetching a group
	rec := doJSON(t, router, "POST", "/api/groups", map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[GroupDTO](t, rec)
	assert.NotEmpty(t, created.ID, "omitted IDs are generated")

	rec = doJSON(t, router, "GET", "/api/groups/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: It appears in the list
	rec = doJSON(t, router, "GET", "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decodeJSON[[]GroupDTO](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, "Acme", groups[0].Name)
}

func TestAPI_GroupNotFound(t *testing.T) {
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "GET", "/api/groups/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateParticipant_Validation(t *testing.T) {
	// GIVEN: A fresh server
	_, router := newTestAPI(t)

	// WHEN: Creating a participant without a group
	rec := doJSON(t, router, "POST", "/api/participants", map[string]string{"name": "No Group"})

	// THEN: 400
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// WHEN: Using a malformed DOB
	rec = doJSON(t, router, "POST", "/api/participants", map[string]any{
		"name": "Bad DOB", "group_id": "grp-1", "dob": "03/14/1984",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PLANS
// =============================================================================

func TestAPI_PlanCreateAndGet(t *testing.T) {
	// GIVEN: A group with an age-banded plan
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Fetching the plan
	rec := doJSON(t, router, "GET", "/api/plans/plan-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decodeJSON[PlanDTO](t, rec)

	// THEN: Options and rates round-trip, nothing is enrolled yet
	assert.Equal(t, "plan-1", plan.Config.ID)
	assert.Len(t, plan.Config.Options, 3)
	assert.Equal(t, 0, plan.EnrollmentCount)
}

func TestAPI_PlanCreate_RejectsBadDefinition(t *testing.T) {
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/plans", map[string]any{
		"config": map[string]any{"name": "x", "family": "weird", "type": "other"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_DeletePlan_BlockedWhileEnrolled(t *testing.T) {
	// GIVEN: A plan with one enrollment
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	rec := doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-1", Coverage: "employee_only", EffectiveDate: jan1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Deleting the plan
	rec = doJSON(t, router, "DELETE", "/api/plans/plan-1", nil)

	// THEN: 409, plan still there
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, router, "GET", "/api/plans/plan-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_DeletePlan_UnenrolledSucceeds(t *testing.T) {
	// GIVEN: A plan nobody is enrolled in
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Deleting it
	rec := doJSON(t, router, "DELETE", "/api/plans/plan-1", nil)

	// THEN: Gone
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, "GET", "/api/plans/plan-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CurrentRates(t *testing.T) {
	// GIVEN: An age-banded plan with open rates from January 1st
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Asking for current rates
	rec := doJSON(t, router, "GET", "/api/plans/plan-1/rates/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rates := decodeJSON[[]DisplayRateDTO](t, rec)

	// THEN: Every option shows its active rate
	require.Len(t, rates, 3)
	for _, dr := range rates {
		assert.Equal(t, "active", dr.Status)
		assert.NotEmpty(t, dr.Amount)
	}
}

func TestAPI_CurrentRates_PendingBeforeEffective(t *testing.T) {
	// GIVEN: An age-banded plan with rates from January 1st
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Asking as of a date before any rate starts
	lastYear := engine.NewDate(engine.Today().Year()-1, 6, 1).String()
	rec := doJSON(t, router, "GET", "/api/plans/plan-1/rates/current?as_of="+lastYear, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rates := decodeJSON[[]DisplayRateDTO](t, rec)

	// THEN: The nearest future rate shows as pending
	require.Len(t, rates, 3)
	for _, dr := range rates {
		assert.Equal(t, "pending", dr.Status)
	}
}

func TestAPI_AddRate(t *testing.T) {
	// GIVEN: An existing plan
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Appending next year's rate to a band
	nextJan := engine.NewDate(engine.Today().Year()+1, 1, 1).String()
	rec := doJSON(t, router, "POST", "/api/plans/plan-1/rates", CreateRateRequest{
		OptionID: "opt-30",
		Rate:     factory.RateJSON{Start: nextJan, Amount: "111.00"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: The plan now carries four rates
	rec = doJSON(t, router, "GET", "/api/plans/plan-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decodeJSON[PlanDTO](t, rec)
	total := 0
	for _, o := range plan.Config.Options {
		total += len(o.Rates)
	}
	assert.Equal(t, 4, total)

	// AND: A group-plan rate without an option is rejected
	rec = doJSON(t, router, "POST", "/api/plans/plan-1/rates", CreateRateRequest{
		Rate: factory.RateJSON{Start: nextJan, Amount: "9.00"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ENROLLMENT
// =============================================================================

func TestAPI_Enroll_FansOutPerPerson(t *testing.T) {
	// GIVEN: An employee with a spouse
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	rec := doJSON(t, router, "POST", "/api/participants/emp-1/dependents", CreateDependentRequest{
		Relationship: "spouse", Name: "Spouse", DOB: exactYearsAgo(42),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: Enrolling with spouse coverage
	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	rec = doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-1", Coverage: "employee_spouse", EffectiveDate: jan1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	enrollments := decodeJSON[[]EnrollmentDTO](t, rec)

	// THEN: One record per covered person, banded by each person's age
	require.Len(t, enrollments, 2)
	assert.Empty(t, enrollments[0].DependentID)
	assert.Equal(t, "opt-30", enrollments[0].OptionID, "age 35 lands in band 30")
	assert.NotEmpty(t, enrollments[1].DependentID)
	assert.Equal(t, "opt-40", enrollments[1].OptionID, "age 42 lands in band 40")

	// AND: Each record has an open history entry with the contribution split
	rec = doJSON(t, router, "GET", "/api/enrollments/"+enrollments[0].ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeJSON[[]RateHistoryDTO](t, rec)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].End)
	assert.Equal(t, "100", history[0].RateAmount)
	assert.Equal(t, "50", history[0].EmployerAmount)
	assert.Equal(t, "50", history[0].EmployeeAmount)
}

func TestAPI_Enroll_SpouseCoverageWithoutSpouse(t *testing.T) {
	// GIVEN: An employee with no dependents
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Requesting spouse coverage
	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	rec := doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-1", Coverage: "employee_spouse", EffectiveDate: jan1,
	})

	// THEN: Validation failure
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Enroll_RateGapIsUnprocessable(t *testing.T) {
	// GIVEN: An enrollment effective before any rate starts
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	// WHEN: Enrolling effective last year
	lastYear := engine.NewDate(engine.Today().Year()-1, 6, 1).String()
	rec := doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-1", Coverage: "employee_only", EffectiveDate: lastYear,
	})

	// THEN: 422, nothing persisted
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, "GET", "/api/participants/emp-1/enrollments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]EnrollmentDTO](t, rec))
}

func TestAPI_Enroll_UnknownPlan(t *testing.T) {
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	rec := doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-nope", Coverage: "employee_only", EffectiveDate: jan1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_AddDependent_ExtendsEnrollment(t *testing.T) {
	// GIVEN: An employee enrolled with family coverage
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	rec := doJSON(t, router, "POST", "/api/participants/emp-1/dependents", CreateDependentRequest{
		Relationship: "spouse", Name: "First Spouse", DOB: exactYearsAgo(42),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	rec = doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-1", Coverage: "employee_spouse_children", EffectiveDate: jan1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: A child is added later
	rec = doJSON(t, router, "POST", "/api/participants/emp-1/dependents", CreateDependentRequest{
		Relationship: "child", Name: "New Child", DOB: exactYearsAgo(5),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: The response reports the silently extended enrollment
	resp := decodeJSON[struct {
		Dependent DependentDTO    `json:"dependent"`
		Extended  []EnrollmentDTO `json:"extended_enrollments"`
	}](t, rec)
	require.Len(t, resp.Extended, 1)
	assert.Equal(t, resp.Dependent.ID, resp.Extended[0].DependentID)
	assert.Equal(t, "opt-30", resp.Extended[0].OptionID, "age 5 clamps to the lowest band")
}

func TestAPI_TerminateEnrollment(t *testing.T) {
	// GIVEN: An active enrollment
	_, router := newTestAPI(t)
	seedGroupPlan(t, router, 35)

	jan1 := engine.NewDate(engine.Today().Year(), 1, 1).String()
	rec := doJSON(t, router, "POST", "/api/participants/emp-1/enrollments", EnrollRequest{
		PlanID: "plan-1", Coverage: "employee_only", EffectiveDate: jan1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	enrollments := decodeJSON[[]EnrollmentDTO](t, rec)

	// WHEN: Terminating it
	rec = doJSON(t, router, "POST", "/api/enrollments/"+enrollments[0].ID+"/terminate",
		map[string]string{"termination_date": engine.Today().String()})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// THEN: Terminating an unknown enrollment is a 404
	rec = doJSON(t, router, "POST", "/api/enrollments/nope/terminate",
		map[string]string{"termination_date": engine.Today().String()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// RENEWALS
// =============================================================================

func TestAPI_RenewalFlow(t *testing.T) {
	// GIVEN: The renewal-season scenario (enrolled on last year's rates,
	// renewal pending for January 1st)
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "renewal-season"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", "/api/renewals?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeJSON[[]RenewalDTO](t, rec)
	require.Len(t, pending, 1)

	// WHEN: Processing the renewal
	rec = doJSON(t, router, "POST", "/api/renewals/"+pending[0].ID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	processed := decodeJSON[RenewalDTO](t, rec)

	// THEN: Both enrollments rolled onto the new rate
	assert.Equal(t, "processed", processed.Status)
	require.NotNil(t, processed.Report)
	assert.Equal(t, 2, processed.Report.Succeeded)
	assert.Empty(t, processed.Report.Failures)

	// AND: Re-processing skips everything
	rec = doJSON(t, router, "POST", "/api/renewals/"+pending[0].ID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeJSON[RenewalDTO](t, rec)
	require.NotNil(t, again.Report)
	assert.Equal(t, 0, again.Report.Succeeded)
	assert.Equal(t, 2, again.Report.Skipped)
}

func TestAPI_ProcessRenewal_StorageFailureMarksFailed(t *testing.T) {
	// GIVEN: A pending renewal and a store that fails every plan transaction
	h, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "renewal-season"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, "GET", "/api/renewals?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeJSON[[]RenewalDTO](t, rec)
	require.Len(t, pending, 1)

	h.Renewals = engine.NewRenewalProcessor(brokenTxStore{h.Store})

	// WHEN: Processing the renewal
	rec = doJSON(t, router, "POST", "/api/renewals/"+pending[0].ID+"/process", nil)

	// THEN: The request fails and the renewal is recorded as failed
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = doJSON(t, router, "GET", "/api/renewals/"+pending[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decodeJSON[RenewalDTO](t, rec)
	assert.Equal(t, "failed", after.Status, "not left pending after a failed run")
}

func TestAPI_CreateRenewal_Validation(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "POST", "/api/renewals", CreateRenewalRequest{Date: "2026-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "plans are required")

	rec = doJSON(t, router, "POST", "/api/renewals", CreateRenewalRequest{
		Date: "Jan 1", PlanIDs: []string{"plan-1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "date must be YYYY-MM-DD")
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_ScenarioLoad(t *testing.T) {
	// GIVEN: A fresh server
	_, router := newTestAPI(t)

	// WHEN: Loading the small-group scenario
	rec := doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "small-group"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Groups, plans, and enrollments exist
	rec = doJSON(t, router, "GET", "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeJSON[[]GroupDTO](t, rec), 1)

	rec = doJSON(t, router, "GET", "/api/plans?group_id=grp-acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plans := decodeJSON[[]PlanDTO](t, rec)
	require.Len(t, plans, 2)

	rec = doJSON(t, router, "GET", "/api/participants/emp-alice/enrollments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[[]EnrollmentDTO](t, rec), 3, "employee, spouse, and child records")

	// AND: Loading an unknown scenario is a 400
	rec = doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ScenarioReset(t *testing.T) {
	// GIVEN: A loaded scenario
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/scenarios/load", map[string]string{"scenario_id": "medicare"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: Resetting
	rec = doJSON(t, router, "POST", "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Everything is gone
	rec = doJSON(t, router, "GET", "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]GroupDTO](t, rec))
}
