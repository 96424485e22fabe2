package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RogueScr1be/dinnerlock"
	"github.com/RogueScr1be/dinnerlock/pkg/sqlcheck"
)

// Querier executes queries against PostgreSQL.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer extends Querier with ExecContext for writes and migrations.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PGStore is the relational implementation of Store. Every statement goes
// through pkg/sqlcheck before it reaches the engine; a violation aborts the
// call with dinnerlock.ErrContractViolation and is a bug in this package,
// not a runtime condition.
//
// The readonly flag is per-instance configuration (injected, not a module
// global), but note it is shared by every caller of that instance: flipping
// it affects all concurrent requests going through the same adapter.
type PGStore struct {
	db       Execer
	readonly atomic.Bool
	metrics  *Metrics
}

// PGOption configures a PGStore.
type PGOption func(*PGStore)

// WithMetrics attaches adapter counters. Without it the store counts into
// unregistered collectors.
func WithMetrics(m *Metrics) PGOption {
	return func(s *PGStore) {
		s.metrics = m
	}
}

// WithReadonly sets the initial readonly state.
func WithReadonly(readonly bool) PGOption {
	return func(s *PGStore) {
		s.readonly.Store(readonly)
	}
}

// NewPGStore creates a PostgreSQL-backed store over an existing database
// handle (typically *sql.DB with the pgx stdlib driver).
func NewPGStore(db Execer, opts ...PGOption) *PGStore {
	s := &PGStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// SetReadonly toggles readonly mode. The toggle is synchronous and affects
// every concurrent caller sharing this instance.
func (s *PGStore) SetReadonly(readonly bool) {
	s.readonly.Store(readonly)
}

// Readonly reports the current readonly state.
func (s *PGStore) Readonly() bool {
	return s.readonly.Load()
}

// guard runs the pre-dispatch checks: readonly classification first (so a
// maintenance window surfaces as ErrReadonly, not a contract bug), then the
// full analyzer. Both reject before any bytes reach the engine.
func (s *PGStore) guard(stmt string) error {
	if s.readonly.Load() && !sqlcheck.IsReadOnly(stmt) {
		s.metrics.ReadonlyRejected.Inc()
		return dinnerlock.ErrReadonly
	}
	return sqlcheck.Assert(stmt)
}

func (s *PGStore) queryRow(ctx context.Context, stmt string, args ...any) (*sql.Row, error) {
	if err := s.guard(stmt); err != nil {
		return nil, err
	}
	return s.db.QueryRowContext(ctx, stmt, args...), nil
}

func (s *PGStore) exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	if err := s.guard(stmt); err != nil {
		return nil, err
	}
	return s.db.ExecContext(ctx, stmt, args...)
}

// execTenant runs a tenant-scoped write and absorbs the zero-rows case as a
// silent no-op, counting it. The caller cannot learn whether the row was
// absent, closed, or another household's.
func (s *PGStore) execTenant(ctx context.Context, entity, stmt string, args ...any) error {
	res, err := s.exec(ctx, stmt, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		s.metrics.TenantMiss.WithLabelValues(entity).Inc()
	}
	return nil
}

// CreateSession inserts a pending session. The partial unique index
// sessions_one_active turns a start/start race into ErrSessionActive.
func (s *PGStore) CreateSession(ctx context.Context, key dinnerlock.HouseholdKey, sess *dinnerlock.Session) error {
	_, err := s.exec(ctx, stmtInsertSession,
		key.String(), sess.ID, sess.StartedAt, nullJSON(sess.Context),
		string(sess.Outcome), sess.RejectionCount, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		if sqlState(err) == pgUniqueViolation {
			return dinnerlock.ErrSessionActive
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetActiveSession returns the household's single active session.
func (s *PGStore) GetActiveSession(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.Session, error) {
	row, err := s.queryRow(ctx, stmtSelectActiveSession, key.String(), string(dinnerlock.OutcomePending))
	if err != nil {
		return nil, err
	}
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dinnerlock.ErrNoActiveSession
	}
	return sess, err
}

// GetSession returns a session by id, scoped to the household.
func (s *PGStore) GetSession(ctx context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.Session, error) {
	row, err := s.queryRow(ctx, stmtSelectSession, key.String(), id)
	if err != nil {
		return nil, err
	}
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.TenantMiss.WithLabelValues(entitySession).Inc()
		return nil, dinnerlock.ErrNotFound
	}
	return sess, err
}

// LockDecision attaches the decision with write-if-absent semantics.
func (s *PGStore) LockDecision(ctx context.Context, key dinnerlock.HouseholdKey, sessionID string, c dinnerlock.Candidate) error {
	return s.execTenant(ctx, entitySession, stmtLockDecision,
		key.String(), sessionID, c.DecisionID, nullJSON(c.Payload), time.Now().UTC(),
		string(dinnerlock.OutcomePending))
}

// RecordRejection bumps the rejection counter and clears the lock.
func (s *PGStore) RecordRejection(ctx context.Context, key dinnerlock.HouseholdKey, sessionID string) error {
	return s.execTenant(ctx, entitySession, stmtRecordRejection,
		key.String(), sessionID, time.Now().UTC(), string(dinnerlock.OutcomePending))
}

// CloseSession sets a terminal outcome, guarded on the session still pending.
func (s *PGStore) CloseSession(ctx context.Context, key dinnerlock.HouseholdKey, sessionID string, outcome dinnerlock.Outcome, c *dinnerlock.Candidate) error {
	var decisionID sql.NullString
	var payload []byte
	if c != nil {
		decisionID = sql.NullString{String: c.DecisionID, Valid: true}
		payload = c.Payload
	}
	return s.execTenant(ctx, entitySession, stmtCloseSession,
		key.String(), sessionID, string(outcome), time.Now().UTC(),
		decisionID, nullJSON(payload), string(dinnerlock.OutcomePending))
}

// AppendDecisionEvent appends one immutable ledger row.
func (s *PGStore) AppendDecisionEvent(ctx context.Context, key dinnerlock.HouseholdKey, ev *dinnerlock.DecisionEvent) error {
	_, err := s.exec(ctx, stmtInsertDecisionEvent,
		key.String(), ev.ID, ev.DecidedAt, nullTime(ev.ActionedAt),
		nullString(string(ev.Action)), nullString(ev.Annotation),
		[]byte(ev.Payload), nullString(ev.MealID), nullString(ev.ContextHash))
	if err != nil {
		return fmt.Errorf("append decision event: %w", err)
	}
	return nil
}

// GetDecisionEvent returns a ledger row by id, scoped to the household.
func (s *PGStore) GetDecisionEvent(ctx context.Context, key dinnerlock.HouseholdKey, id string) (*dinnerlock.DecisionEvent, error) {
	row, err := s.queryRow(ctx, stmtSelectDecisionEvent, key.String(), id)
	if err != nil {
		return nil, err
	}
	return s.scanEventMiss(row)
}

// GetDecisionEventByContextHash returns the newest event with the given
// context fingerprint.
func (s *PGStore) GetDecisionEventByContextHash(ctx context.Context, key dinnerlock.HouseholdKey, hash string) (*dinnerlock.DecisionEvent, error) {
	row, err := s.queryRow(ctx, stmtSelectDecisionEventByHash, key.String(), hash)
	if err != nil {
		return nil, err
	}
	return s.scanEventMiss(row)
}

// LatestRescueEvent returns the newest drm_triggered event.
func (s *PGStore) LatestRescueEvent(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.DecisionEvent, error) {
	row, err := s.queryRow(ctx, stmtSelectLatestRescue, key.String(), string(dinnerlock.ActionDRMTriggered))
	if err != nil {
		return nil, err
	}
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dinnerlock.ErrNotFound
	}
	return ev, err
}

func (s *PGStore) scanEventMiss(row *sql.Row) (*dinnerlock.DecisionEvent, error) {
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.TenantMiss.WithLabelValues(entityDecisionEvent).Inc()
		return nil, dinnerlock.ErrNotFound
	}
	return ev, err
}

// GetFallbackConfig returns the household's rescue configuration.
func (s *PGStore) GetFallbackConfig(ctx context.Context, key dinnerlock.HouseholdKey) (*dinnerlock.FallbackConfig, error) {
	row, err := s.queryRow(ctx, stmtSelectFallbackConfig, key.String())
	if err != nil {
		return nil, err
	}
	var cfg dinnerlock.FallbackConfig
	var hk string
	var hierarchy []byte
	err = row.Scan(&hk, &hierarchy, &cfg.RejectionThreshold, &cfg.TimeCutoffMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.TenantMiss.WithLabelValues(entityFallbackConfig).Inc()
		return nil, dinnerlock.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fallback config: %w", err)
	}
	cfg.HouseholdKey = dinnerlock.HouseholdKey(hk)
	if err := json.Unmarshal(hierarchy, &cfg.Hierarchy); err != nil {
		return nil, fmt.Errorf("decode fallback hierarchy: %w", err)
	}
	return &cfg, nil
}

// PutFallbackConfig upserts the household's rescue configuration.
func (s *PGStore) PutFallbackConfig(ctx context.Context, key dinnerlock.HouseholdKey, cfg *dinnerlock.FallbackConfig) error {
	hierarchy, err := json.Marshal(cfg.Hierarchy)
	if err != nil {
		return fmt.Errorf("encode fallback hierarchy: %w", err)
	}
	_, err = s.exec(ctx, stmtUpsertFallbackConfig,
		key.String(), hierarchy, cfg.RejectionThreshold, cfg.TimeCutoffMinutes, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put fallback config: %w", err)
	}
	return nil
}

// GetMeal reads one catalog row. No household scoping.
func (s *PGStore) GetMeal(ctx context.Context, id string) (*dinnerlock.Meal, error) {
	row, err := s.queryRow(ctx, stmtSelectMeal, id)
	if err != nil {
		return nil, err
	}
	meal, err := scanMeal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dinnerlock.ErrNotFound
	}
	return meal, err
}

// ListMeals lists the shared catalog.
func (s *PGStore) ListMeals(ctx context.Context) ([]dinnerlock.Meal, error) {
	if err := s.guard(stmtListMeals); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmtListMeals)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var meals []dinnerlock.Meal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, *meal)
	}
	return meals, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*dinnerlock.Session, error) {
	var sess dinnerlock.Session
	var hk, outcome string
	var endedAt sql.NullTime
	var contextBlob, payload []byte
	var decisionID sql.NullString

	err := row.Scan(&hk, &sess.ID, &sess.StartedAt, &endedAt, &contextBlob,
		&decisionID, &payload, &outcome, &sess.RejectionCount,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}

	sess.HouseholdKey = dinnerlock.HouseholdKey(hk)
	sess.Outcome = dinnerlock.Outcome(outcome)
	sess.Context = contextBlob
	sess.DecisionPayload = payload
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if decisionID.Valid {
		sess.DecisionID = decisionID.String
	}
	return &sess, nil
}

func scanEvent(row rowScanner) (*dinnerlock.DecisionEvent, error) {
	var ev dinnerlock.DecisionEvent
	var hk string
	var actionedAt sql.NullTime
	var action, annotation, mealID, contextHash sql.NullString
	var payload []byte

	err := row.Scan(&hk, &ev.ID, &ev.DecidedAt, &actionedAt, &action,
		&annotation, &payload, &mealID, &contextHash)
	if err != nil {
		return nil, err
	}

	ev.HouseholdKey = dinnerlock.HouseholdKey(hk)
	ev.Payload = payload
	if actionedAt.Valid {
		t := actionedAt.Time
		ev.ActionedAt = &t
	}
	ev.Action = dinnerlock.UserAction(action.String)
	ev.Annotation = annotation.String
	ev.MealID = mealID.String
	ev.ContextHash = contextHash.String
	return &ev, nil
}

func scanMeal(row rowScanner) (*dinnerlock.Meal, error) {
	var meal dinnerlock.Meal
	var tags []byte
	if err := row.Scan(&meal.ID, &meal.Name, &tags); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &meal.Tags); err != nil {
			return nil, fmt.Errorf("decode meal tags: %w", err)
		}
	}
	return &meal, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// PostgreSQL error codes the adapter branches on.
const pgUniqueViolation = "23505" // unique_violation

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection (pgx/pgconn exposes
// SQLState(), lib/pq exposes Code()).
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	type codeErr interface{ Code() string }
	var ce codeErr
	if errors.As(err, &ce) {
		return ce.Code()
	}

	// Last resort: pull the code out of the rendered message.
	msg := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(msg, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(msg) {
				return msg[start : start+5]
			}
		}
	}
	return ""
}

// Ensure PGStore implements Store.
var _ Store = (*PGStore)(nil)
