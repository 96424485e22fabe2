package rescue

import (
	"time"

	"github.com/RogueScr1be/dinnerlock"
)

// defaultRotationWindow is how long a selection stays "recent" for rotation.
// Two days covers back-to-back rescue nights; after a quiet stretch the
// hierarchy starts over from the household's first choice.
const defaultRotationWindow = 48 * time.Hour

// Engine selects fallback options with anti-repetition rotation.
type Engine struct {
	window  time.Duration
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithRotationWindow overrides the anti-repetition window.
func WithRotationWindow(d time.Duration) Option {
	return func(e *Engine) {
		e.window = d
	}
}

// WithMetrics attaches rescue counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a rescue engine with the default rotation window.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{window: defaultRotationWindow}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Select picks the next fallback option from the household's hierarchy.
//
// Rotation: if the last rescue within the window served option i, this one
// serves option (i+1) mod len, circularly. A last use outside the window, or
// one whose option no longer appears in the hierarchy, resets to the first
// entry. An empty hierarchy returns dinnerlock.ErrFallbackExhausted; Select
// never panics.
func (e *Engine) Select(cfg *dinnerlock.FallbackConfig, last *LastUse, now time.Time, reason Reason) (*Rescue, error) {
	hierarchy := cfg.Hierarchy
	if len(hierarchy) == 0 {
		return nil, dinnerlock.ErrFallbackExhausted
	}

	idx := 0
	if last != nil && now.Sub(last.At) <= e.window {
		for i, opt := range hierarchy {
			if opt.Key() == last.OptionKey {
				idx = (i + 1) % len(hierarchy)
				break
			}
		}
	}

	opt := hierarchy[idx]
	e.metrics.Rescues.WithLabelValues(string(reason)).Inc()
	return &Rescue{
		Option:       opt,
		Instructions: opt.Instructions,
		Confidence:   1.0,
		Reason:       reason,
	}, nil
}
