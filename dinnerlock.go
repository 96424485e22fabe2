// Package dinnerlock is the core of a single-recommendation decision service
// for households. For a given household it produces at most one active
// recommendation per interaction, durably records every decision and user
// response in an append-only ledger, and guarantees a last-resort rescue path
// that always succeeds.
//
// # Module Structure
//
// This root package holds the shared domain types and sentinel errors.
// The working parts live in subpackages:
//
//   - pkg/sqlcheck: static SQL safety analyzer that proves, before any
//     statement executes, that it cannot touch another household's rows
//   - pkg/store: the storage adapter (in-memory and PostgreSQL) with
//     identical household-isolation guarantees
//   - pkg/session: the session / decision-lock state machine
//   - pkg/rescue: the rule-based rescue engine
//
// # Tenant Convention
//
// Every persisted row that belongs to a household carries its household key,
// and every tenant-scoped operation takes the household key as its first
// argument. On the PostgreSQL backend the same convention is bit-exact at the
// wire level: positional parameter $1 is always the household key. The
// analyzer in pkg/sqlcheck enforces this before any statement is dispatched.
//
// # Basic Usage
//
//	st := store.NewMemoryStore()
//	mgr := session.NewManager(st, recommender, engine)
//	sess, _ := mgr.Start(ctx, "hh-42", nil)
//	dec, _ := mgr.LockDecision(ctx, "hh-42")
package dinnerlock

import (
	"encoding/json"
	"time"
)

// HouseholdKey identifies a tenant. The core receives an already-authenticated
// key from the API layer; it never mints or validates keys itself.
type HouseholdKey string

// String returns the raw key.
func (k HouseholdKey) String() string {
	return string(k)
}

// UserAction records how a household responded to a decision.
type UserAction string

// User actions stored on decision events. An event with an empty action is a
// freshly issued decision awaiting a response.
const (
	ActionPending      UserAction = "pending"
	ActionApproved     UserAction = "approved"
	ActionRejected     UserAction = "rejected"
	ActionDRMTriggered UserAction = "drm_triggered"
	ActionExpired      UserAction = "expired"
)

// Outcome is the terminal disposition of a session.
type Outcome string

// Session outcomes. A session is active while its outcome is OutcomePending
// and EndedAt is unset; every other outcome is terminal.
const (
	OutcomePending   Outcome = "pending"
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRescued   Outcome = "rescued"
	OutcomeAbandoned Outcome = "abandoned"
)

// Terminal reports whether the outcome closes a session.
func (o Outcome) Terminal() bool {
	return o == OutcomeAccepted || o == OutcomeRescued || o == OutcomeAbandoned
}

// DecisionEvent is one row of the append-only decision ledger. Events are
// immutable once written: a household's response to an existing decision is
// recorded by appending a new event that copies the original payload and sets
// Action/ActionedAt. History is reconstructed by reading events, never by
// mutating one.
type DecisionEvent struct {
	HouseholdKey HouseholdKey    `json:"household_key"`
	ID           string          `json:"id"`
	DecidedAt    time.Time       `json:"decided_at"`
	ActionedAt   *time.Time      `json:"actioned_at,omitempty"`
	Action       UserAction      `json:"action,omitempty"`
	Annotation   string          `json:"annotation,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	MealID       string          `json:"meal_id,omitempty"`
	ContextHash  string          `json:"context_hash,omitempty"`
}

// Session is one household interaction. At most one session per household may
// simultaneously have OutcomePending and no EndedAt (the active session).
// DecisionID/DecisionPayload form the decision lock; they are set at most once
// per round and cleared on rejection.
type Session struct {
	HouseholdKey    HouseholdKey    `json:"household_key"`
	ID              string          `json:"id"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	Context         json.RawMessage `json:"context,omitempty"`
	DecisionID      string          `json:"decision_id,omitempty"`
	DecisionPayload json.RawMessage `json:"decision_payload,omitempty"`
	Outcome         Outcome         `json:"outcome"`
	RejectionCount  int             `json:"rejection_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Active reports whether the session is the household's active session.
func (s *Session) Active() bool {
	return s.Outcome == OutcomePending && s.EndedAt == nil
}

// Locked reports whether the session currently carries a decision lock.
func (s *Session) Locked() bool {
	return s.DecisionID != ""
}

// FallbackOption is one pre-approved, always-executable entry in a
// household's rescue hierarchy.
type FallbackOption struct {
	Type         string `json:"type"`
	MealID       string `json:"meal_id,omitempty"`
	Instructions string `json:"instructions"`
}

// Key returns the identity used for anti-repetition tracking. Two options are
// the same for rotation purposes when type and meal reference both match.
func (o FallbackOption) Key() string {
	return o.Type + "/" + o.MealID
}

// FallbackConfig is a household's rescue configuration: an ordered hierarchy
// of fallback options plus the thresholds that gate the rescue engine. The
// rescue engine treats it as read-only; it is owned by household
// configuration, not mutated by this core.
type FallbackConfig struct {
	HouseholdKey       HouseholdKey     `json:"household_key,omitempty"`
	Hierarchy          []FallbackOption `json:"hierarchy"`
	RejectionThreshold int              `json:"rejection_threshold"`
	// TimeCutoffMinutes is minutes since midnight, server time. Past this
	// point the rescue engine fires regardless of rejection count.
	TimeCutoffMinutes int `json:"time_cutoff_minutes"`
}

// Meal is a row of the shared recommendation catalog. The catalog is
// explicitly exempt from household scoping; it is the one set of tables the
// analyzer does not require a tenant predicate for.
type Meal struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// Candidate is the opaque output of the primary recommendation pipeline.
// Scoring and ranking are out of scope for this core; it only persists and
// locks whatever the pipeline produced.
type Candidate struct {
	DecisionID  string          `json:"decision_id"`
	MealID      string          `json:"meal_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ContextHash string          `json:"context_hash,omitempty"`
}
