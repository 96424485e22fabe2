package rescue_test

import (
	"testing"
	"time"

	"github.com/RogueScr1be/dinnerlock"
	"github.com/RogueScr1be/dinnerlock/pkg/rescue"
)

// evening is a fixed reference time well past a 19:00 cutoff.
var evening = time.Date(2026, 3, 14, 19, 45, 0, 0, time.UTC)

func testConfig() *dinnerlock.FallbackConfig {
	return &dinnerlock.FallbackConfig{
		Hierarchy: []dinnerlock.FallbackOption{
			{Type: "pantry", MealID: "cereal", Instructions: "Cereal night."},
			{Type: "pantry", MealID: "pbj", Instructions: "PB&J sandwiches."},
			{Type: "pantry", MealID: "crackers", Instructions: "Crackers and cheese."},
		},
		RejectionThreshold: 2,
		TimeCutoffMinutes:  19 * 60,
	}
}

func TestEvaluate_PriorityOrder(t *testing.T) {
	cfg := testConfig()

	// Every condition holds at once; the highest-priority reason wins.
	all := rescue.Input{ExplicitDone: true, NoCandidate: true, RejectionCount: 5, Now: evening}

	cases := []struct {
		name string
		in   rescue.Input
		want rescue.Reason
	}{
		{"explicit done beats everything", all, rescue.ReasonExplicitDone},
		{"no candidate beats thresholds", rescue.Input{NoCandidate: true, RejectionCount: 5, Now: evening}, rescue.ReasonNoCandidate},
		{"rejections beat time", rescue.Input{RejectionCount: 2, Now: evening}, rescue.ReasonRejectionThreshold},
		{"time alone", rescue.Input{RejectionCount: 1, Now: evening}, rescue.ReasonTimeThreshold},
	}
	for _, tc := range cases {
		reason, fired := rescue.Evaluate(cfg, tc.in)
		if !fired {
			t.Errorf("%s: did not fire", tc.name)
			continue
		}
		if reason != tc.want {
			t.Errorf("%s: reason = %s, want %s", tc.name, reason, tc.want)
		}
	}
}

func TestEvaluate_NoTrigger(t *testing.T) {
	cfg := testConfig()
	afternoon := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)

	if reason, fired := rescue.Evaluate(cfg, rescue.Input{RejectionCount: 1, Now: afternoon}); fired {
		t.Errorf("fired with reason %s below both thresholds", reason)
	}
}

func TestEvaluate_RejectionThreshold(t *testing.T) {
	cfg := testConfig()
	afternoon := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)

	if _, fired := rescue.Evaluate(cfg, rescue.Input{RejectionCount: 1, Now: afternoon}); fired {
		t.Error("fired one rejection below the threshold")
	}
	reason, fired := rescue.Evaluate(cfg, rescue.Input{RejectionCount: 2, Now: afternoon})
	if !fired || reason != rescue.ReasonRejectionThreshold {
		t.Errorf("at threshold: fired=%v reason=%s, want rejection_threshold", fired, reason)
	}
}

func TestEvaluate_DisabledThresholds(t *testing.T) {
	cfg := testConfig()
	cfg.RejectionThreshold = 0
	cfg.TimeCutoffMinutes = 0

	if reason, fired := rescue.Evaluate(cfg, rescue.Input{RejectionCount: 100, Now: evening}); fired {
		t.Errorf("fired with reason %s despite disabled thresholds", reason)
	}
}

func TestEvaluate_TimeUsesMinutesSinceMidnight(t *testing.T) {
	cfg := testConfig()

	exactly := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	reason, fired := rescue.Evaluate(cfg, rescue.Input{Now: exactly})
	if !fired || reason != rescue.ReasonTimeThreshold {
		t.Errorf("at cutoff: fired=%v reason=%s, want time_threshold", fired, reason)
	}

	before := time.Date(2026, 3, 14, 18, 59, 0, 0, time.UTC)
	if _, fired := rescue.Evaluate(cfg, rescue.Input{Now: before}); fired {
		t.Error("fired one minute before the cutoff")
	}
}

// TestSelect_RotationScenario walks three consecutive rescue nights plus a
// fourth: Cereal, then PB&J, then Crackers, then back to Cereal.
func TestSelect_RotationScenario(t *testing.T) {
	cfg := testConfig()
	engine := rescue.NewEngine()

	night := evening
	var last *rescue.LastUse
	want := []string{"cereal", "pbj", "crackers", "cereal"}

	for i, mealID := range want {
		res, err := engine.Select(cfg, last, night, rescue.ReasonTimeThreshold)
		if err != nil {
			t.Fatalf("night %d: %v", i+1, err)
		}
		if res.Option.MealID != mealID {
			t.Fatalf("night %d: served %s, want %s", i+1, res.Option.MealID, mealID)
		}
		if res.Confidence != 1.0 {
			t.Errorf("night %d: confidence = %v, want 1.0", i+1, res.Confidence)
		}
		if res.Instructions != res.Option.Instructions {
			t.Errorf("night %d: instructions not carried from option", i+1)
		}
		last = &rescue.LastUse{OptionKey: res.Option.Key(), At: night}
		night = night.Add(24 * time.Hour)
	}
}

func TestSelect_WindowElapsedResetsToFirst(t *testing.T) {
	cfg := testConfig()
	engine := rescue.NewEngine(rescue.WithRotationWindow(48 * time.Hour))

	last := &rescue.LastUse{
		OptionKey: cfg.Hierarchy[1].Key(),
		At:        evening.Add(-72 * time.Hour),
	}
	res, err := engine.Select(cfg, last, evening, rescue.ReasonTimeThreshold)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if res.Option.MealID != "cereal" {
		t.Errorf("served %s after window elapsed, want first entry", res.Option.MealID)
	}
}

func TestSelect_UnknownLastOptionResetsToFirst(t *testing.T) {
	cfg := testConfig()
	engine := rescue.NewEngine()

	// The last-used option was removed from the hierarchy since.
	last := &rescue.LastUse{OptionKey: "pantry/ramen", At: evening.Add(-time.Hour)}
	res, err := engine.Select(cfg, last, evening, rescue.ReasonRejectionThreshold)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if res.Option.MealID != "cereal" {
		t.Errorf("served %s after hierarchy change, want first entry", res.Option.MealID)
	}
}

func TestSelect_EmptyHierarchy(t *testing.T) {
	engine := rescue.NewEngine()
	cfg := &dinnerlock.FallbackConfig{}

	_, err := engine.Select(cfg, nil, evening, rescue.ReasonExplicitDone)
	if !dinnerlock.IsFallbackExhaustedErr(err) {
		t.Errorf("Select on empty hierarchy = %v, want ErrFallbackExhausted", err)
	}
}

func TestDefaultConfig_AlwaysServable(t *testing.T) {
	cfg := rescue.DefaultConfig()
	if len(cfg.Hierarchy) == 0 {
		t.Fatal("default hierarchy is empty")
	}
	seen := make(map[string]bool)
	for _, opt := range cfg.Hierarchy {
		if opt.Instructions == "" {
			t.Errorf("option %s has no instructions", opt.Key())
		}
		if seen[opt.Key()] {
			t.Errorf("duplicate rotation key %s breaks anti-repetition", opt.Key())
		}
		seen[opt.Key()] = true
	}
}
