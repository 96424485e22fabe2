package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	prtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/RogueScr1be/dinnerlock"
	"github.com/RogueScr1be/dinnerlock/pkg/store"
)

func newSession(key dinnerlock.HouseholdKey, id string) *dinnerlock.Session {
	now := time.Now().UTC()
	return &dinnerlock.Session{
		HouseholdKey:   key,
		ID:             id,
		StartedAt:      now,
		Outcome:        dinnerlock.OutcomePending,
		RejectionCount: 0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMemoryStore_OneActiveSessionPerHousehold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	if err := st.CreateSession(ctx, "hh-a", newSession("hh-a", "s1")); err != nil {
		t.Fatalf("first CreateSession: %v", err)
	}
	if err := st.CreateSession(ctx, "hh-a", newSession("hh-a", "s2")); err != dinnerlock.ErrSessionActive {
		t.Errorf("second CreateSession = %v, want ErrSessionActive", err)
	}

	// A different household is unaffected.
	if err := st.CreateSession(ctx, "hh-b", newSession("hh-b", "s1")); err != nil {
		t.Errorf("other household CreateSession: %v", err)
	}

	// Closing the session frees the slot.
	if err := st.CloseSession(ctx, "hh-a", "s1", dinnerlock.OutcomeAbandoned, nil); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if err := st.CreateSession(ctx, "hh-a", newSession("hh-a", "s3")); err != nil {
		t.Errorf("CreateSession after close: %v", err)
	}
}

func TestMemoryStore_LockDecisionWriteIfAbsent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	if err := st.CreateSession(ctx, "hh-a", newSession("hh-a", "s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := dinnerlock.Candidate{DecisionID: "d1", Payload: json.RawMessage(`{"meal":"tacos"}`)}
	second := dinnerlock.Candidate{DecisionID: "d2", Payload: json.RawMessage(`{"meal":"soup"}`)}

	if err := st.LockDecision(ctx, "hh-a", "s1", first); err != nil {
		t.Fatalf("first LockDecision: %v", err)
	}
	// The second write is a no-op: first writer wins.
	if err := st.LockDecision(ctx, "hh-a", "s1", second); err != nil {
		t.Fatalf("second LockDecision: %v", err)
	}

	sess, err := st.GetActiveSession(ctx, "hh-a")
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if sess.DecisionID != "d1" {
		t.Errorf("DecisionID = %q, want d1", sess.DecisionID)
	}
	if string(sess.DecisionPayload) != `{"meal":"tacos"}` {
		t.Errorf("DecisionPayload = %s, want first writer's payload", sess.DecisionPayload)
	}
}

func TestMemoryStore_RejectionClearsLock(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	if err := st.CreateSession(ctx, "hh-a", newSession("hh-a", "s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.LockDecision(ctx, "hh-a", "s1", dinnerlock.Candidate{DecisionID: "d1", Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("LockDecision: %v", err)
	}
	if err := st.RecordRejection(ctx, "hh-a", "s1"); err != nil {
		t.Fatalf("RecordRejection: %v", err)
	}

	sess, err := st.GetActiveSession(ctx, "hh-a")
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if sess.RejectionCount != 1 {
		t.Errorf("RejectionCount = %d, want 1", sess.RejectionCount)
	}
	if sess.Locked() {
		t.Error("lock should be cleared after rejection")
	}
	if sess.Outcome != dinnerlock.OutcomePending {
		t.Errorf("Outcome = %s, want pending", sess.Outcome)
	}
}

func TestMemoryStore_CrossHouseholdInvisibility(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := store.NewMetrics(reg)
	st := store.NewMemoryStore(store.WithMemMetrics(metrics))

	if err := st.CreateSession(ctx, "hh-a", newSession("hh-a", "s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.LockDecision(ctx, "hh-a", "s1", dinnerlock.Candidate{DecisionID: "d1", Payload: json.RawMessage(`{"k":1}`)}); err != nil {
		t.Fatalf("LockDecision: %v", err)
	}

	// Reads under the wrong household are indistinguishable from absence.
	if _, err := st.GetSession(ctx, "hh-b", "s1"); !dinnerlock.IsNotFoundErr(err) {
		t.Errorf("cross-household GetSession = %v, want ErrNotFound", err)
	}

	// Writes under the wrong household are silent no-ops.
	if err := st.CloseSession(ctx, "hh-b", "s1", dinnerlock.OutcomeAccepted, nil); err != nil {
		t.Errorf("cross-household CloseSession = %v, want silent nil", err)
	}
	if err := st.RecordRejection(ctx, "hh-b", "s1"); err != nil {
		t.Errorf("cross-household RecordRejection = %v, want silent nil", err)
	}

	sess, err := st.GetSession(ctx, "hh-a", "s1")
	if err != nil {
		t.Fatalf("owner GetSession: %v", err)
	}
	if sess.Outcome != dinnerlock.OutcomePending || sess.RejectionCount != 0 || sess.DecisionID != "d1" {
		t.Errorf("owner's session was modified by cross-household writes: %+v", sess)
	}

	// The misses are observable on the counter, not the API.
	got := prtestutil.ToFloat64(metrics.TenantMiss.WithLabelValues("session"))
	if got != 3 {
		t.Errorf("tenant miss counter = %v, want 3", got)
	}
}

func TestMemoryStore_DecisionLedger(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	base := time.Now().UTC().Add(-time.Hour)
	events := []*dinnerlock.DecisionEvent{
		{ID: "e1", DecidedAt: base, Payload: json.RawMessage(`{"n":1}`), ContextHash: "ctx-1"},
		{ID: "e2", DecidedAt: base.Add(time.Minute), Payload: json.RawMessage(`{"n":2}`), Action: dinnerlock.ActionDRMTriggered, MealID: "cereal"},
		{ID: "e3", DecidedAt: base.Add(2 * time.Minute), Payload: json.RawMessage(`{"n":3}`), ContextHash: "ctx-1"},
	}
	for _, ev := range events {
		if err := st.AppendDecisionEvent(ctx, "hh-a", ev); err != nil {
			t.Fatalf("AppendDecisionEvent(%s): %v", ev.ID, err)
		}
	}

	ev, err := st.GetDecisionEvent(ctx, "hh-a", "e2")
	if err != nil {
		t.Fatalf("GetDecisionEvent: %v", err)
	}
	if ev.Action != dinnerlock.ActionDRMTriggered {
		t.Errorf("Action = %s, want drm_triggered", ev.Action)
	}

	// Hash lookup returns the newest matching event.
	ev, err = st.GetDecisionEventByContextHash(ctx, "hh-a", "ctx-1")
	if err != nil {
		t.Fatalf("GetDecisionEventByContextHash: %v", err)
	}
	if ev.ID != "e3" {
		t.Errorf("hash lookup returned %s, want e3", ev.ID)
	}

	rescue, err := st.LatestRescueEvent(ctx, "hh-a")
	if err != nil {
		t.Fatalf("LatestRescueEvent: %v", err)
	}
	if rescue.ID != "e2" {
		t.Errorf("LatestRescueEvent returned %s, want e2", rescue.ID)
	}

	// Another household sees none of it.
	if _, err := st.GetDecisionEvent(ctx, "hh-b", "e1"); !dinnerlock.IsNotFoundErr(err) {
		t.Errorf("cross-household event read = %v, want ErrNotFound", err)
	}
	if _, err := st.LatestRescueEvent(ctx, "hh-b"); !dinnerlock.IsNotFoundErr(err) {
		t.Errorf("cross-household rescue read = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_FallbackConfigUpsert(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	cfg := &dinnerlock.FallbackConfig{
		Hierarchy:          []dinnerlock.FallbackOption{{Type: "pantry", Instructions: "cereal"}},
		RejectionThreshold: 2,
		TimeCutoffMinutes:  19 * 60,
	}
	if err := st.PutFallbackConfig(ctx, "hh-a", cfg); err != nil {
		t.Fatalf("PutFallbackConfig: %v", err)
	}

	cfg.RejectionThreshold = 3
	if err := st.PutFallbackConfig(ctx, "hh-a", cfg); err != nil {
		t.Fatalf("upsert PutFallbackConfig: %v", err)
	}

	got, err := st.GetFallbackConfig(ctx, "hh-a")
	if err != nil {
		t.Fatalf("GetFallbackConfig: %v", err)
	}
	if got.RejectionThreshold != 3 {
		t.Errorf("RejectionThreshold = %d, want 3 (upsert should replace)", got.RejectionThreshold)
	}

	if _, err := st.GetFallbackConfig(ctx, "hh-b"); !dinnerlock.IsNotFoundErr(err) {
		t.Errorf("unconfigured household = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Catalog(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	st.SeedMeals(
		dinnerlock.Meal{ID: "m1", Name: "Tacos", Tags: []string{"quick"}},
		dinnerlock.Meal{ID: "m2", Name: "Soup"},
	)

	meal, err := st.GetMeal(ctx, "m1")
	if err != nil {
		t.Fatalf("GetMeal: %v", err)
	}
	if meal.Name != "Tacos" {
		t.Errorf("Name = %q, want Tacos", meal.Name)
	}

	meals, err := st.ListMeals(ctx)
	if err != nil {
		t.Fatalf("ListMeals: %v", err)
	}
	if len(meals) != 2 {
		t.Errorf("ListMeals returned %d meals, want 2", len(meals))
	}
}
