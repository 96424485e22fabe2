package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RogueScr1be/dinnerlock"
	"github.com/RogueScr1be/dinnerlock/pkg/rescue"
)

// ErrNoCandidate is returned by LockDecision when the recommender produced
// nothing. It is a rescue signal, not a failure: pass NoCandidate to
// EvaluateRescue and rescue the session.
var ErrNoCandidate = errors.New("session: recommender produced no candidate")

// RescueSignals carries the caller-side rescue inputs. Session-side inputs
// (rejection count, server time) are filled in by the Manager.
type RescueSignals struct {
	// ExplicitDone is the household's "just feed us" action.
	ExplicitDone bool
	// NoCandidate reports that LockDecision returned ErrNoCandidate.
	NoCandidate bool
}

// EvaluateRescue reports whether the household's active session should be
// rescued and why. Thresholds come from the household's fallback
// configuration, or the shared default if none is set.
func (m *Manager) EvaluateRescue(ctx context.Context, key dinnerlock.HouseholdKey, sig RescueSignals) (rescue.Reason, bool, error) {
	sess, err := m.store.GetActiveSession(ctx, key)
	if err != nil {
		return "", false, err
	}
	cfg, err := m.fallbackConfig(ctx, key)
	if err != nil {
		return "", false, err
	}
	reason, fired := rescue.Evaluate(cfg, rescue.Input{
		ExplicitDone:   sig.ExplicitDone,
		NoCandidate:    sig.NoCandidate,
		RejectionCount: sess.RejectionCount,
		Now:            m.now(),
	})
	return reason, fired, nil
}

// Rescue fires the rescue path: selects the next fallback option from the
// household's hierarchy, appends a drm_triggered ledger event, and closes the
// session as rescued. The selected option is returned; it is pre-approved and
// requires no confirmation.
func (m *Manager) Rescue(ctx context.Context, key dinnerlock.HouseholdKey, reason rescue.Reason) (*rescue.Rescue, error) {
	sess, err := m.store.GetActiveSession(ctx, key)
	if err != nil {
		return nil, err
	}
	cfg, err := m.fallbackConfig(ctx, key)
	if err != nil {
		return nil, err
	}

	last, err := m.lastRescueUse(ctx, key)
	if err != nil {
		return nil, err
	}

	now := m.now()
	res, err := m.engine.Select(cfg, last, now, reason)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(res.Option)
	if err != nil {
		return nil, fmt.Errorf("encode rescue option: %w", err)
	}
	ev := &dinnerlock.DecisionEvent{
		HouseholdKey: key,
		ID:           m.newID(),
		DecidedAt:    now,
		ActionedAt:   &now,
		Action:       dinnerlock.ActionDRMTriggered,
		Annotation:   string(reason),
		Payload:      payload,
		MealID:       res.Option.MealID,
	}
	if err := m.store.AppendDecisionEvent(ctx, key, ev); err != nil {
		return nil, fmt.Errorf("append rescue event: %w", err)
	}

	chosen := &dinnerlock.Candidate{
		DecisionID: ev.ID,
		MealID:     res.Option.MealID,
		Payload:    payload,
	}
	if err := m.store.CloseSession(ctx, key, sess.ID, dinnerlock.OutcomeRescued, chosen); err != nil {
		return nil, err
	}
	return res, nil
}

// fallbackConfig loads the household's rescue configuration, falling back to
// the shared default when none is set.
func (m *Manager) fallbackConfig(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.FallbackConfig, error) {
	cfg, err := m.store.GetFallbackConfig(ctx, key)
	if dinnerlock.IsNotFoundErr(err) {
		return rescue.DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// lastRescueUse derives the rotation state from the ledger's newest
// drm_triggered event. The event payload is the fallback option that was
// served; its rotation key and timestamp are all Select needs.
func (m *Manager) lastRescueUse(ctx context.Context, key dinnerlock.HouseholdKey) (*rescue.LastUse, error) {
	ev, err := m.store.LatestRescueEvent(ctx, key)
	if dinnerlock.IsNotFoundErr(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var opt dinnerlock.FallbackOption
	if err := json.Unmarshal(ev.Payload, &opt); err != nil {
		// A malformed historic payload should not block a rescue; start the
		// hierarchy over instead.
		return nil, nil
	}
	return &rescue.LastUse{OptionKey: opt.Key(), At: ev.DecidedAt}, nil
}
