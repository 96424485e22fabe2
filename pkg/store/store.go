// Package store is the storage adapter for dinnerlock: one interface, two
// implementations, identical household-isolation guarantees.
//
// Every method touching a tenant-scoped entity takes the household key as its
// first argument after the context. The in-memory implementation enforces
// isolation structurally: every lookup filters by an equality comparison
// against the stored household key, and a cross-household id collision is
// "not found", never another household's row. The PostgreSQL implementation
// enforces the same guarantees by running every statement through
// pkg/sqlcheck before dispatch.
//
// Cross-household writes are deliberately silent no-ops and cross-household
// reads deliberately return dinnerlock.ErrNotFound: confirming or denying the
// existence of another household's data is itself a leak. Both
// implementations count these misses on a Prometheus counter instead of
// logging them, so the behavior stays observable without becoming noisy.
package store

import (
	"context"

	"github.com/RogueScr1be/dinnerlock"
)

// Store is the uniform tenant-scoped persistence interface consumed by the
// session state machine and the rescue engine.
//
// Lookups that find nothing for the requesting household return
// dinnerlock.ErrNotFound (or ErrNoActiveSession for the active-session read);
// updates that match nothing are silent no-ops. Neither case distinguishes
// "absent" from "owned by someone else".
type Store interface {
	// CreateSession inserts a new pending session. If the household already
	// has an active session the insert fails with dinnerlock.ErrSessionActive;
	// on the relational backend a partial unique index backstops the race.
	CreateSession(ctx context.Context, key dinnerlock.HouseholdKey, s *dinnerlock.Session) error

	// GetActiveSession returns the household's single active session
	// (outcome pending, no end time) or dinnerlock.ErrNoActiveSession.
	GetActiveSession(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error)

	// GetSession returns the session by id, scoped to the household.
	GetSession(ctx context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.Session, error)

	// LockDecision attaches a decision to the session with write-if-absent
	// semantics: it only takes effect when the session is active and carries
	// no lock. Callers must re-read the session afterwards; whatever was
	// written first wins.
	LockDecision(ctx context.Context, key dinnerlock.HouseholdKey, sessionID string, c dinnerlock.Candidate) error

	// RecordRejection increments the session's rejection count and clears
	// its decision lock. The outcome stays pending.
	RecordRejection(ctx context.Context, key dinnerlock.HouseholdKey, sessionID string) error

	// CloseSession sets a terminal outcome and the end time, guarded on the
	// session still being pending. For a rescue close, c carries the rescue
	// decision; otherwise c is nil and the locked decision is kept as-is.
	CloseSession(ctx context.Context, key dinnerlock.HouseholdKey, sessionID string, outcome dinnerlock.Outcome, c *dinnerlock.Candidate) error

	// AppendDecisionEvent appends one immutable row to the decision ledger.
	// Events are never updated or deleted.
	AppendDecisionEvent(ctx context.Context, key dinnerlock.HouseholdKey, ev *dinnerlock.DecisionEvent) error

	// GetDecisionEvent returns the event by id, scoped to the household.
	GetDecisionEvent(ctx context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.DecisionEvent, error)

	// GetDecisionEventByContextHash returns the household's most recent event
	// with the given context fingerprint, for idempotency lookups.
	GetDecisionEventByContextHash(ctx context.Context, key dinnerlock.HouseholdKey, hash string) (*dinnerlock.DecisionEvent, error)

	// LatestRescueEvent returns the household's most recent drm_triggered
	// event. The rescue engine derives its anti-repetition state from this,
	// keeping FallbackConfig read-only.
	LatestRescueEvent(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.DecisionEvent, error)

	// GetFallbackConfig returns the household's rescue configuration, or
	// dinnerlock.ErrNotFound when none is configured (callers fall back to
	// the shared default).
	GetFallbackConfig(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.FallbackConfig, error)

	// PutFallbackConfig upserts the household's rescue configuration. The
	// upsert conflicts on the household key, never on a synthetic id.
	PutFallbackConfig(ctx context.Context, key dinnerlock.HouseholdKey, cfg *dinnerlock.FallbackConfig) error

	// GetMeal reads from the shared recommendation catalog. The catalog is
	// exempt from household scoping.
	GetMeal(ctx context.Context, id string) (*dinnerlock.Meal, error)

	// ListMeals lists the shared catalog.
	ListMeals(ctx context.Context) ([]dinnerlock.Meal, error)
}
