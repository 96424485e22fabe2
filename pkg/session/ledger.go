package session

import (
	"context"
	"fmt"

	"github.com/RogueScr1be/dinnerlock"
)

// AppendEvent appends a ledger event for the household. A missing id or
// decided-at is filled in; the payload is stored verbatim.
func (m *Manager) AppendEvent(ctx context.Context, key dinnerlock.HouseholdKey, ev *dinnerlock.DecisionEvent) (*dinnerlock.DecisionEvent, error) {
	if len(ev.Payload) == 0 {
		return nil, fmt.Errorf("decision event requires a payload")
	}
	cp := *ev
	cp.HouseholdKey = key
	if cp.ID == "" {
		cp.ID = m.newID()
	}
	if cp.DecidedAt.IsZero() {
		cp.DecidedAt = m.now()
	}
	if err := m.store.AppendDecisionEvent(ctx, key, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// GetEvent returns a ledger event by id, scoped to the household.
func (m *Manager) GetEvent(ctx context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.DecisionEvent, error) {
	return m.store.GetDecisionEvent(ctx, key, id)
}

// GetEventByContextHash returns the household's newest ledger event whose
// context fingerprint matches. Used for decision deduplication: a repeated
// identical request finds its prior answer here instead of minting a new one.
func (m *Manager) GetEventByContextHash(ctx context.Context, key dinnerlock.HouseholdKey, hash string) (*dinnerlock.DecisionEvent, error) {
	return m.store.GetDecisionEventByContextHash(ctx, key, hash)
}
