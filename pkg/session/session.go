// Package session implements the household interaction state machine: one
// active session per household, a decision lock that is written at most once
// per round, and the append-only decision ledger the rest of the system
// reads its history from.
//
// # Decision Lock
//
// The single-recommendation guarantee rests on the lock. LockDecision is the
// only verb that attaches a decision to a session, and the underlying store
// write is write-if-absent: once a decision is locked, further lock attempts
// change nothing. Concurrent callers converge by re-reading the session after
// the write and returning whatever won; no cross-statement transactions are
// involved.
//
// # Ledger
//
// Every decision and every household response is appended to the decision
// ledger as an immutable event. Responses never mutate the original event;
// they are new events carrying the original payload with Action and
// ActionedAt set.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RogueScr1be/dinnerlock"
	"github.com/RogueScr1be/dinnerlock/pkg/rescue"
	"github.com/RogueScr1be/dinnerlock/pkg/store"
)

// Recommender produces the next candidate for a household. It is the
// injection point for the primary recommendation pipeline, which is opaque to
// this core: whatever payload it returns is persisted and locked verbatim.
// Returning (nil, nil) means the pipeline has no candidate, which is a rescue
// signal, not an error.
type Recommender func(ctx context.Context, constraints json.RawMessage) (*dinnerlock.Candidate, error)

// Manager drives sessions, decision locks, and the ledger for all households
// over a single Store.
type Manager struct {
	store     store.Store
	recommend Recommender
	engine    *rescue.Engine
	now       func() time.Time
	newID     func() string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source. Tests use it to pin threshold and
// rotation behavior.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithIDGenerator overrides session and event id generation.
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = newID
	}
}

// NewManager creates a Manager over the given store, recommender, and rescue
// engine.
func NewManager(st store.Store, rec Recommender, eng *rescue.Engine, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     st,
		recommend: rec,
		engine:    eng,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a new session for the household. Fails with ErrSessionActive
// while another session is still active.
func (m *Manager) Start(ctx context.Context, key dinnerlock.HouseholdKey, constraints json.RawMessage) (*dinnerlock.Session, error) {
	now := m.now()
	sess := &dinnerlock.Session{
		HouseholdKey: key,
		ID:           m.newID(),
		StartedAt:    now,
		Context:      constraints,
		Outcome:      dinnerlock.OutcomePending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.CreateSession(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetActive returns the household's active session, or ErrNoActiveSession.
func (m *Manager) GetActive(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	return m.store.GetActiveSession(ctx, key)
}

// LockDecision produces and locks the household's single recommendation for
// this round.
//
// If the active session already carries a lock, that decision is returned
// unchanged: LockDecision is idempotent within a round. Otherwise the
// recommender runs, the decision is appended to the ledger, and the lock is
// attempted with write-if-absent semantics. The session is then re-read and
// whatever decision actually won is returned, so concurrent callers converge
// on one decision even when both attempted a write.
//
// A recommender with no candidate surfaces as ErrNoCandidate; feed that into
// EvaluateRescue rather than retrying.
func (m *Manager) LockDecision(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	sess, err := m.store.GetActiveSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess.Locked() {
		return sess, nil
	}

	candidate, err := m.recommend(ctx, sess.Context)
	if err != nil {
		return nil, fmt.Errorf("recommender: %w", err)
	}
	if candidate == nil {
		return nil, ErrNoCandidate
	}
	if candidate.DecisionID == "" {
		candidate.DecisionID = m.newID()
	}

	// Ledger first: the decision exists as history even if the lock race is
	// lost below.
	ev := &dinnerlock.DecisionEvent{
		HouseholdKey: key,
		ID:           candidate.DecisionID,
		DecidedAt:    m.now(),
		Payload:      candidate.Payload,
		MealID:       candidate.MealID,
		ContextHash:  candidate.ContextHash,
	}
	if err := m.store.AppendDecisionEvent(ctx, key, ev); err != nil {
		return nil, fmt.Errorf("append decision: %w", err)
	}

	if err := m.store.LockDecision(ctx, key, sess.ID, *candidate); err != nil {
		return nil, err
	}

	// Converge: return whatever decision is actually on the session now,
	// which may be a concurrent caller's.
	sess, err = m.store.GetActiveSession(ctx, key)
	if dinnerlock.IsNoActiveSessionErr(err) {
		return nil, dinnerlock.ErrSessionClosed
	}
	return sess, err
}

// Reject records the household's rejection of the locked decision: the
// rejection count goes up, the lock is cleared, and the session stays
// pending. The updated session is returned so the caller can evaluate rescue
// thresholds.
func (m *Manager) Reject(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	sess, err := m.store.GetActiveSession(ctx, key)
	if err != nil {
		return nil, err
	}

	if sess.Locked() {
		if err := m.appendResponse(ctx, key, sess, dinnerlock.ActionRejected); err != nil {
			return nil, err
		}
	}
	if err := m.store.RecordRejection(ctx, key, sess.ID); err != nil {
		return nil, err
	}
	return m.store.GetSession(ctx, key, sess.ID)
}

// Accept closes the session with the locked decision as the final answer.
func (m *Manager) Accept(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	sess, err := m.store.GetActiveSession(ctx, key)
	if err != nil {
		return nil, err
	}
	if !sess.Locked() {
		return nil, fmt.Errorf("accept without a locked decision: %w", dinnerlock.ErrNotFound)
	}

	if err := m.appendResponse(ctx, key, sess, dinnerlock.ActionApproved); err != nil {
		return nil, err
	}
	if err := m.store.CloseSession(ctx, key, sess.ID, dinnerlock.OutcomeAccepted, nil); err != nil {
		return nil, err
	}
	return m.store.GetSession(ctx, key, sess.ID)
}

// Abandon closes the session without a decision. An expired response is
// appended if a decision was still locked.
func (m *Manager) Abandon(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	sess, err := m.store.GetActiveSession(ctx, key)
	if err != nil {
		return nil, err
	}

	if sess.Locked() {
		if err := m.appendResponse(ctx, key, sess, dinnerlock.ActionExpired); err != nil {
			return nil, err
		}
	}
	if err := m.store.CloseSession(ctx, key, sess.ID, dinnerlock.OutcomeAbandoned, nil); err != nil {
		return nil, err
	}
	return m.store.GetSession(ctx, key, sess.ID)
}

// appendResponse appends the household's response to a locked decision as a
// new ledger event carrying the original payload.
func (m *Manager) appendResponse(ctx context.Context, key dinnerlock.HouseholdKey, sess *dinnerlock.Session, action dinnerlock.UserAction) error {
	now := m.now()
	ev := &dinnerlock.DecisionEvent{
		HouseholdKey: key,
		ID:           m.newID(),
		DecidedAt:    now,
		ActionedAt:   &now,
		Action:       action,
		Payload:      sess.DecisionPayload,
		Annotation:   sess.DecisionID,
	}
	if err := m.store.AppendDecisionEvent(ctx, key, ev); err != nil {
		return fmt.Errorf("append %s response: %w", action, err)
	}
	return nil
}
