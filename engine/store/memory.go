// Package store provides an in-memory engine.TxStore implementation for
// tests and development.
package store

import (
	"context"
	"sync"

	"github.com/coverline/benefits-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex // serializes WithPlanTx blocks

	groups       map[engine.GroupID]engine.Group
	plans        map[engine.PlanID]engine.Plan
	options      map[engine.OptionID]engine.PlanOption
	rates        map[engine.RateID]engine.Rate
	participants map[engine.ParticipantID]engine.Participant
	dependents   map[engine.DependentID]engine.Dependent
	enrollments  map[engine.EnrollmentID]engine.Enrollment
	history      map[engine.HistoryID]engine.RateHistoryEntry

	// insertion order for deterministic listings
	historyOrder    []engine.HistoryID
	enrollmentOrder []engine.EnrollmentID
	optionOrder     []engine.OptionID
	rateOrder       []engine.RateID
}

func NewMemory() *Memory {
	return &Memory{
		groups:       make(map[engine.GroupID]engine.Group),
		plans:        make(map[engine.PlanID]engine.Plan),
		options:      make(map[engine.OptionID]engine.PlanOption),
		rates:        make(map[engine.RateID]engine.Rate),
		participants: make(map[engine.ParticipantID]engine.Participant),
		dependents:   make(map[engine.DependentID]engine.Dependent),
		enrollments:  make(map[engine.EnrollmentID]engine.Enrollment),
		history:      make(map[engine.HistoryID]engine.RateHistoryEntry),
	}
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func (m *Memory) PutGroup(g engine.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
}

func (m *Memory) PutPlan(p engine.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

func (m *Memory) PutOption(o engine.PlanOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.options[o.ID]; !exists {
		m.optionOrder = append(m.optionOrder, o.ID)
	}
	m.options[o.ID] = o
}

func (m *Memory) PutRate(r engine.Rate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rates[r.ID]; !exists {
		m.rateOrder = append(m.rateOrder, r.ID)
	}
	m.rates[r.ID] = r
}

func (m *Memory) PutParticipant(p engine.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[p.ID] = p
}

func (m *Memory) PutDependent(d engine.Dependent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dependents[d.ID] = d
}

func (m *Memory) PutEnrollment(e engine.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putEnrollmentLocked(e)
}

func (m *Memory) PutHistory(h engine.RateHistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putHistoryLocked(h)
}

func (m *Memory) putEnrollmentLocked(e engine.Enrollment) {
	if _, exists := m.enrollments[e.ID]; !exists {
		m.enrollmentOrder = append(m.enrollmentOrder, e.ID)
	}
	m.enrollments[e.ID] = e
}

func (m *Memory) putHistoryLocked(h engine.RateHistoryEntry) {
	if _, exists := m.history[h.ID]; !exists {
		m.historyOrder = append(m.historyOrder, h.ID)
	}
	m.history[h.ID] = h
}

// History returns all history entries for an enrollment in insertion order.
func (m *Memory) History(enrollmentID engine.EnrollmentID) []engine.RateHistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.RateHistoryEntry
	for _, id := range m.historyOrder {
		if h := m.history[id]; h.EnrollmentID == enrollmentID {
			result = append(result, h)
		}
	}
	return result
}

// =============================================================================
// READS (engine.Store)
// =============================================================================

func (m *Memory) Plan(_ context.Context, id engine.PlanID) (*engine.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) PlanOptions(_ context.Context, planID engine.PlanID) ([]engine.PlanOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.PlanOption
	for _, id := range m.optionOrder {
		if o := m.options[id]; o.PlanID == planID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *Memory) CandidateRates(_ context.Context, planID engine.PlanID, optionID engine.OptionID) ([]engine.Rate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Rate
	for _, id := range m.rateOrder {
		r := m.rates[id]
		if r.PlanID == planID && r.OptionID == optionID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *Memory) Participant(_ context.Context, id engine.ParticipantID) (*engine.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) Dependents(_ context.Context, participantID engine.ParticipantID) ([]engine.Dependent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Dependent
	for _, d := range m.dependents {
		if d.ParticipantID == participantID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *Memory) ActiveEnrollments(_ context.Context, planID engine.PlanID, asOf engine.Date) ([]engine.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Enrollment
	for _, id := range m.enrollmentOrder {
		e := m.enrollments[id]
		if e.PlanID != planID || !e.ActiveAt(asOf) {
			continue
		}
		if p, ok := m.participants[e.ParticipantID]; ok && p.TerminatedBefore(asOf) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (m *Memory) ParticipantEnrollments(_ context.Context, participantID engine.ParticipantID) ([]engine.Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Enrollment
	for _, id := range m.enrollmentOrder {
		if e := m.enrollments[id]; e.ParticipantID == participantID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) OpenRateHistory(_ context.Context, enrollmentID engine.EnrollmentID) ([]engine.RateHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.RateHistoryEntry
	for _, id := range m.historyOrder {
		if h := m.history[id]; h.EnrollmentID == enrollmentID && h.Open() {
			result = append(result, h)
		}
	}
	return result, nil
}

// =============================================================================
// WRITES (engine.Store)
// =============================================================================

func (m *Memory) CreateEnrollments(_ context.Context, enrollments []engine.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range enrollments {
		m.putEnrollmentLocked(e)
	}
	return nil
}

func (m *Memory) AppendRateHistory(_ context.Context, entries []engine.RateHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range entries {
		m.putHistoryLocked(h)
	}
	return nil
}

func (m *Memory) CloseRateHistory(_ context.Context, entryID engine.HistoryID, end engine.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.history[entryID]
	if !ok {
		return engine.ErrEnrollmentNotFound
	}
	h.End = &end
	m.history[entryID] = h
	return nil
}

// =============================================================================
// TRANSACTIONS (engine.TxStore)
// =============================================================================

// WithPlanTx simulates a per-plan transaction with snapshot + rollback.
// The single write lock also serializes concurrent writers.
func (m *Memory) WithPlanTx(_ context.Context, _ engine.PlanID, fn func(engine.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// txMu serializes transactions; the inner mu still guards individual ops so
// reads inside fn see the transaction's own writes.
var _ engine.TxStore = (*Memory)(nil)

type memorySnapshot struct {
	enrollments     map[engine.EnrollmentID]engine.Enrollment
	history         map[engine.HistoryID]engine.RateHistoryEntry
	enrollmentOrder []engine.EnrollmentID
	historyOrder    []engine.HistoryID
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		enrollments:     make(map[engine.EnrollmentID]engine.Enrollment, len(m.enrollments)),
		history:         make(map[engine.HistoryID]engine.RateHistoryEntry, len(m.history)),
		enrollmentOrder: append([]engine.EnrollmentID{}, m.enrollmentOrder...),
		historyOrder:    append([]engine.HistoryID{}, m.historyOrder...),
	}
	for k, v := range m.enrollments {
		s.enrollments[k] = v
	}
	for k, v := range m.history {
		s.history[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enrollments = s.enrollments
	m.history = s.history
	m.enrollmentOrder = s.enrollmentOrder
	m.historyOrder = s.historyOrder
}

// txView delegates to the parent; rollback is handled by WithPlanTx.
type txView struct {
	parent *Memory
}

func (tv *txView) Plan(ctx context.Context, id engine.PlanID) (*engine.Plan, error) {
	return tv.parent.Plan(ctx, id)
}
func (tv *txView) PlanOptions(ctx context.Context, planID engine.PlanID) ([]engine.PlanOption, error) {
	return tv.parent.PlanOptions(ctx, planID)
}
func (tv *txView) CandidateRates(ctx context.Context, planID engine.PlanID, optionID engine.OptionID) ([]engine.Rate, error) {
	return tv.parent.CandidateRates(ctx, planID, optionID)
}
func (tv *txView) Participant(ctx context.Context, id engine.ParticipantID) (*engine.Participant, error) {
	return tv.parent.Participant(ctx, id)
}
func (tv *txView) Dependents(ctx context.Context, participantID engine.ParticipantID) ([]engine.Dependent, error) {
	return tv.parent.Dependents(ctx, participantID)
}
func (tv *txView) ActiveEnrollments(ctx context.Context, planID engine.PlanID, asOf engine.Date) ([]engine.Enrollment, error) {
	return tv.parent.ActiveEnrollments(ctx, planID, asOf)
}
func (tv *txView) ParticipantEnrollments(ctx context.Context, participantID engine.ParticipantID) ([]engine.Enrollment, error) {
	return tv.parent.ParticipantEnrollments(ctx, participantID)
}
func (tv *txView) OpenRateHistory(ctx context.Context, enrollmentID engine.EnrollmentID) ([]engine.RateHistoryEntry, error) {
	return tv.parent.OpenRateHistory(ctx, enrollmentID)
}
func (tv *txView) CreateEnrollments(ctx context.Context, enrollments []engine.Enrollment) error {
	return tv.parent.CreateEnrollments(ctx, enrollments)
}
func (tv *txView) AppendRateHistory(ctx context.Context, entries []engine.RateHistoryEntry) error {
	return tv.parent.AppendRateHistory(ctx, entries)
}
func (tv *txView) CloseRateHistory(ctx context.Context, entryID engine.HistoryID, end engine.Date) error {
	return tv.parent.CloseRateHistory(ctx, entryID, end)
}
