// Package rescue implements the rule-based rescue engine: the guaranteed
// last-resort path when the primary recommendation flow cannot produce an
// accepted dinner.
//
// The engine has two halves. Evaluate decides WHETHER a rescue fires, using a
// strict priority chain over explicit signals, rejection counts, and the
// household's time cutoff. Select decides WHICH pre-approved fallback option
// to serve, walking the household's ordered hierarchy with anti-repetition
// rotation so consecutive rescue nights do not serve the same meal.
//
// The engine never optimizes, scores, or ranks. Hierarchy order is the
// household's own preference order and is honored as written; Confidence on a
// rescue is always 1.0 because every hierarchy entry is pre-approved and
// always executable.
package rescue

import (
	"time"

	"github.com/RogueScr1be/dinnerlock"
)

// Reason identifies which rule fired a rescue.
type Reason string

// Rescue trigger reasons, in strict priority order. When several conditions
// hold at once, Evaluate reports the highest-priority one.
const (
	ReasonExplicitDone       Reason = "explicit_done"
	ReasonNoCandidate        Reason = "no_candidate"
	ReasonRejectionThreshold Reason = "rejection_threshold"
	ReasonTimeThreshold      Reason = "time_threshold"
)

// Input carries the signals Evaluate rules on. ExplicitDone and NoCandidate
// come from the caller; RejectionCount from the active session; Now is server
// time (the cutoff comparison uses minutes since midnight, never the client
// clock).
type Input struct {
	ExplicitDone   bool
	NoCandidate    bool
	RejectionCount int
	Now            time.Time
}

// Evaluate reports whether a rescue should fire and why. The priority chain
// is fixed: explicit_done, then no_candidate, then rejection_threshold, then
// time_threshold. A zero threshold disables its rule.
func Evaluate(cfg *dinnerlock.FallbackConfig, in Input) (Reason, bool) {
	if in.ExplicitDone {
		return ReasonExplicitDone, true
	}
	if in.NoCandidate {
		return ReasonNoCandidate, true
	}
	if cfg.RejectionThreshold > 0 && in.RejectionCount >= cfg.RejectionThreshold {
		return ReasonRejectionThreshold, true
	}
	if cfg.TimeCutoffMinutes > 0 && minutesSinceMidnight(in.Now) >= cfg.TimeCutoffMinutes {
		return ReasonTimeThreshold, true
	}
	return "", false
}

func minutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Rescue is a fired rescue: the selected option, its executable instructions,
// and the reason it fired. Confidence is always 1.0.
type Rescue struct {
	Option       dinnerlock.FallbackOption `json:"option"`
	Instructions string                    `json:"instructions"`
	Confidence   float64                   `json:"confidence"`
	Reason       Reason                    `json:"reason"`
}

// LastUse records the most recent rescue selection, used for anti-repetition
// rotation. It is derived from the decision ledger's newest drm_triggered
// event, not stored on the household's configuration.
type LastUse struct {
	OptionKey string
	At        time.Time
}

// DefaultConfig is the shared fallback configuration for households that have
// not set one. Pantry staples only: every entry works from a normally stocked
// kitchen with zero preparation.
func DefaultConfig() *dinnerlock.FallbackConfig {
	return &dinnerlock.FallbackConfig{
		Hierarchy: []dinnerlock.FallbackOption{
			{Type: "pantry", MealID: "cereal", Instructions: "Cereal night: bowls, milk, done."},
			{Type: "pantry", MealID: "pbj", Instructions: "PB&J sandwiches, plus whatever fruit is around."},
			{Type: "pantry", MealID: "crackers", Instructions: "Crackers, cheese, and the snack drawer."},
		},
		RejectionThreshold: 2,
		TimeCutoffMinutes:  19 * 60,
	}
}
