package store

import (
	"context"
	"sync"
	"time"

	"github.com/RogueScr1be/dinnerlock"
)

// MemoryStore is the embedded implementation of Store. Isolation is
// structural: rows live in per-household maps and every lookup compares the
// stored household key, so a cross-household id collision can only ever be
// "not found".
//
// It applies the same upsert and one-active-session rules as the relational
// backend so the two are interchangeable in tests and single-process
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[dinnerlock.HouseholdKey]map[string]*dinnerlock.Session
	events    map[dinnerlock.HouseholdKey][]*dinnerlock.DecisionEvent
	fallbacks map[dinnerlock.HouseholdKey]*dinnerlock.FallbackConfig
	meals     map[string]*dinnerlock.Meal
	mealOrder []string
	metrics   *Metrics
}

// MemOption configures a MemoryStore.
type MemOption func(*MemoryStore)

// WithMemMetrics attaches adapter counters.
func WithMemMetrics(m *Metrics) MemOption {
	return func(s *MemoryStore) {
		s.metrics = m
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemOption) *MemoryStore {
	s := &MemoryStore{
		sessions:  make(map[dinnerlock.HouseholdKey]map[string]*dinnerlock.Session),
		events:    make(map[dinnerlock.HouseholdKey][]*dinnerlock.DecisionEvent),
		fallbacks: make(map[dinnerlock.HouseholdKey]*dinnerlock.FallbackConfig),
		meals:     make(map[string]*dinnerlock.Meal),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// SeedMeals loads catalog rows. The catalog is shared and not part of the
// Store write surface; seeding exists for tests and fixtures.
func (s *MemoryStore) SeedMeals(meals ...dinnerlock.Meal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range meals {
		m := meals[i]
		if _, ok := s.meals[m.ID]; !ok {
			s.mealOrder = append(s.mealOrder, m.ID)
		}
		s.meals[m.ID] = &m
	}
}

// CreateSession inserts a pending session, enforcing at most one active
// session per household.
func (s *MemoryStore) CreateSession(_ context.Context, key dinnerlock.HouseholdKey, sess *dinnerlock.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions[key] {
		if existing.Active() {
			return dinnerlock.ErrSessionActive
		}
	}
	if s.sessions[key] == nil {
		s.sessions[key] = make(map[string]*dinnerlock.Session)
	}
	cp := cloneSession(sess)
	cp.HouseholdKey = key
	s.sessions[key][cp.ID] = cp
	return nil
}

// GetActiveSession returns the household's single active session.
func (s *MemoryStore) GetActiveSession(_ context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions[key] {
		if sess.Active() {
			return cloneSession(sess), nil
		}
	}
	return nil, dinnerlock.ErrNoActiveSession
}

// GetSession returns a session by id, scoped to the household.
func (s *MemoryStore) GetSession(_ context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key][id]
	if !ok {
		s.metrics.TenantMiss.WithLabelValues(entitySession).Inc()
		return nil, dinnerlock.ErrNotFound
	}
	return cloneSession(sess), nil
}

// LockDecision attaches the decision with write-if-absent semantics. A
// session that is missing, closed, or already locked leaves the call a no-op.
func (s *MemoryStore) LockDecision(_ context.Context, key dinnerlock.HouseholdKey, sessionID string, c dinnerlock.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key][sessionID]
	if !ok {
		s.metrics.TenantMiss.WithLabelValues(entitySession).Inc()
		return nil
	}
	if !sess.Active() || sess.Locked() {
		return nil
	}
	sess.DecisionID = c.DecisionID
	sess.DecisionPayload = append([]byte(nil), c.Payload...)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordRejection bumps the rejection counter and clears the lock.
func (s *MemoryStore) RecordRejection(_ context.Context, key dinnerlock.HouseholdKey, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key][sessionID]
	if !ok {
		s.metrics.TenantMiss.WithLabelValues(entitySession).Inc()
		return nil
	}
	if !sess.Active() {
		return nil
	}
	sess.RejectionCount++
	sess.DecisionID = ""
	sess.DecisionPayload = nil
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// CloseSession sets a terminal outcome, guarded on the session still pending.
func (s *MemoryStore) CloseSession(_ context.Context, key dinnerlock.HouseholdKey, sessionID string, outcome dinnerlock.Outcome, c *dinnerlock.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key][sessionID]
	if !ok {
		s.metrics.TenantMiss.WithLabelValues(entitySession).Inc()
		return nil
	}
	if !sess.Active() {
		return nil
	}
	now := time.Now().UTC()
	sess.Outcome = outcome
	sess.EndedAt = &now
	sess.UpdatedAt = now
	if c != nil {
		sess.DecisionID = c.DecisionID
		sess.DecisionPayload = append([]byte(nil), c.Payload...)
	}
	return nil
}

// AppendDecisionEvent appends one immutable ledger row.
func (s *MemoryStore) AppendDecisionEvent(_ context.Context, key dinnerlock.HouseholdKey, ev *dinnerlock.DecisionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneEvent(ev)
	cp.HouseholdKey = key
	s.events[key] = append(s.events[key], cp)
	return nil
}

// GetDecisionEvent returns a ledger row by id, scoped to the household.
func (s *MemoryStore) GetDecisionEvent(_ context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.DecisionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ev := range s.events[key] {
		if ev.ID == id {
			return cloneEvent(ev), nil
		}
	}
	s.metrics.TenantMiss.WithLabelValues(entityDecisionEvent).Inc()
	return nil, dinnerlock.ErrNotFound
}

// GetDecisionEventByContextHash returns the newest event with the given
// context fingerprint.
func (s *MemoryStore) GetDecisionEventByContextHash(_ context.Context, key dinnerlock.HouseholdKey, hash string) (*dinnerlock.DecisionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[key]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ContextHash == hash {
			return cloneEvent(events[i]), nil
		}
	}
	s.metrics.TenantMiss.WithLabelValues(entityDecisionEvent).Inc()
	return nil, dinnerlock.ErrNotFound
}

// LatestRescueEvent returns the newest drm_triggered event.
func (s *MemoryStore) LatestRescueEvent(_ context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.DecisionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[key]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Action == dinnerlock.ActionDRMTriggered {
			return cloneEvent(events[i]), nil
		}
	}
	return nil, dinnerlock.ErrNotFound
}

// GetFallbackConfig returns the household's rescue configuration.
func (s *MemoryStore) GetFallbackConfig(_ context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.FallbackConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.fallbacks[key]
	if !ok {
		s.metrics.TenantMiss.WithLabelValues(entityFallbackConfig).Inc()
		return nil, dinnerlock.ErrNotFound
	}
	return cloneFallbackConfig(cfg), nil
}

// PutFallbackConfig upserts the household's rescue configuration, keyed on
// the household key alone (its natural key for this entity).
func (s *MemoryStore) PutFallbackConfig(_ context.Context, key dinnerlock.HouseholdKey, cfg *dinnerlock.FallbackConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneFallbackConfig(cfg)
	cp.HouseholdKey = key
	s.fallbacks[key] = cp
	return nil
}

// GetMeal reads one catalog row. No household scoping.
func (s *MemoryStore) GetMeal(_ context.Context, id string) (*dinnerlock.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meal, ok := s.meals[id]
	if !ok {
		return nil, dinnerlock.ErrNotFound
	}
	cp := *meal
	return &cp, nil
}

// ListMeals lists the shared catalog in insertion order.
func (s *MemoryStore) ListMeals(_ context.Context) ([]dinnerlock.Meal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meals := make([]dinnerlock.Meal, 0, len(s.mealOrder))
	for _, id := range s.mealOrder {
		meals = append(meals, *s.meals[id])
	}
	return meals, nil
}

func cloneSession(s *dinnerlock.Session) *dinnerlock.Session {
	cp := *s
	cp.Context = append([]byte(nil), s.Context...)
	cp.DecisionPayload = append([]byte(nil), s.DecisionPayload...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

func cloneEvent(ev *dinnerlock.DecisionEvent) *dinnerlock.DecisionEvent {
	cp := *ev
	cp.Payload = append([]byte(nil), ev.Payload...)
	if ev.ActionedAt != nil {
		t := *ev.ActionedAt
		cp.ActionedAt = &t
	}
	return &cp
}

func cloneFallbackConfig(cfg *dinnerlock.FallbackConfig) *dinnerlock.FallbackConfig {
	cp := *cfg
	cp.Hierarchy = append([]dinnerlock.FallbackOption(nil), cfg.Hierarchy...)
	return &cp
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
