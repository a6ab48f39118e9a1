/*
store.go - Persistence contracts the engine consumes

PURPOSE:
  Defines the interface between the engine and the record storage layer.
  The engine is pure, synchronous logic over data fetched through these
  contracts; implementations live in store/sqlite (production) and
  engine/store (in-memory, for tests and dev).

READ CONTRACT:
  Missing single records are returned as (nil, nil); the engine translates
  to its not-found sentinels. List reads return empty slices, never errors,
  for empty result sets.

WRITE CONTRACT:
  CreateEnrollments and AppendRateHistory are all-or-nothing within a call.
  Cross-call atomicity (create enrollments + their opening history entries,
  or close-previous/open-new during a renewal) comes from WithPlanTx.

PLAN-LEVEL SERIALIZATION:
  The single open (End == nil) history entry per enrollment is the one
  shared mutable resource. WithPlanTx serializes writers per plan so two
  overlapping renewal runs cannot leave two entries open.
*/
package engine

import "context"

// Store is the record storage contract for the engine.
type Store interface {
	// Plan returns the plan, or (nil, nil) if it does not exist.
	Plan(ctx context.Context, id PlanID) (*Plan, error)

	// PlanOptions returns the options owned by a plan.
	PlanOptions(ctx context.Context, planID PlanID) ([]PlanOption, error)

	// CandidateRates returns every rate attached to the given option, or to
	// the plan itself when optionID is empty (Medicare plan-level rates).
	// Temporal filtering is the resolver's job, not the store's.
	CandidateRates(ctx context.Context, planID PlanID, optionID OptionID) ([]Rate, error)

	// Participant returns the participant, or (nil, nil) if missing.
	Participant(ctx context.Context, id ParticipantID) (*Participant, error)

	// Dependents returns all dependents of a participant.
	Dependents(ctx context.Context, participantID ParticipantID) ([]Dependent, error)

	// ActiveEnrollments returns enrollments under the plan whose effective
	// period covers asOf, excluding enrollments whose participant is
	// terminated before asOf.
	ActiveEnrollments(ctx context.Context, planID PlanID, asOf Date) ([]Enrollment, error)

	// ParticipantEnrollments returns all enrollments of a participant
	// across plans, including dependent fan-out records.
	ParticipantEnrollments(ctx context.Context, participantID ParticipantID) ([]Enrollment, error)

	// OpenRateHistory returns the open (End == nil) history entries for an
	// enrollment. More than one element means the data is corrupt; callers
	// treat that as fatal.
	OpenRateHistory(ctx context.Context, enrollmentID EnrollmentID) ([]RateHistoryEntry, error)

	// CreateEnrollments persists enrollments all-or-nothing.
	CreateEnrollments(ctx context.Context, enrollments []Enrollment) error

	// AppendRateHistory persists history entries all-or-nothing.
	AppendRateHistory(ctx context.Context, entries []RateHistoryEntry) error

	// CloseRateHistory sets the end date of an open history entry.
	CloseRateHistory(ctx context.Context, entryID HistoryID, end Date) error
}

// TxStore extends Store with a per-plan transactional scope.
type TxStore interface {
	Store

	// WithPlanTx executes fn atomically with respect to other writers on
	// the same plan: either all mutations fn performs commit, or none do.
	// Writers on the same plan are serialized.
	WithPlanTx(ctx context.Context, planID PlanID, fn func(Store) error) error
}
