package store

// The runtime SQL corpus. Every statement the PostgreSQL adapter dispatches
// lives here as a named constant so the whole corpus can be validated offline
// (see corpus_test.go and the `dinnerlock vet` command). Statement text
// follows the fixed protocol convention: $1 is always the household key on
// tenant-scoped statements.

const sessionColumns = `household_key, id, started_at, ended_at, context, decision_id, decision_payload, outcome, rejection_count, created_at, updated_at`

const (
	stmtInsertSession = `INSERT INTO sessions (household_key, id, started_at, context, outcome, rejection_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	stmtSelectActiveSession = `SELECT ` + sessionColumns + `
FROM sessions
WHERE household_key = $1 AND outcome = $2 AND ended_at IS NULL`

	stmtSelectSession = `SELECT ` + sessionColumns + `
FROM sessions
WHERE household_key = $1 AND id = $2`

	// Write-if-absent: only an active, lock-free session takes the decision.
	stmtLockDecision = `UPDATE sessions
SET decision_id = $3, decision_payload = $4, updated_at = $5
WHERE household_key = $1 AND id = $2 AND decision_id IS NULL AND outcome = $6 AND ended_at IS NULL`

	stmtRecordRejection = `UPDATE sessions
SET rejection_count = rejection_count + 1, decision_id = NULL, decision_payload = NULL, updated_at = $3
WHERE household_key = $1 AND id = $2 AND outcome = $4 AND ended_at IS NULL`

	stmtCloseSession = `UPDATE sessions
SET outcome = $3, ended_at = $4, decision_id = COALESCE($5, decision_id), decision_payload = COALESCE($6, decision_payload), updated_at = $4
WHERE household_key = $1 AND id = $2 AND outcome = $7 AND ended_at IS NULL`
)

const decisionEventColumns = `household_key, id, decided_at, actioned_at, user_action, annotation, payload, meal_id, context_hash`

const (
	stmtInsertDecisionEvent = `INSERT INTO decision_events (household_key, id, decided_at, actioned_at, user_action, annotation, payload, meal_id, context_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	stmtSelectDecisionEvent = `SELECT ` + decisionEventColumns + `
FROM decision_events
WHERE household_key = $1 AND id = $2`

	stmtSelectDecisionEventByHash = `SELECT ` + decisionEventColumns + `
FROM decision_events
WHERE household_key = $1 AND context_hash = $2
ORDER BY decided_at DESC
LIMIT 1`

	stmtSelectLatestRescue = `SELECT ` + decisionEventColumns + `
FROM decision_events
WHERE household_key = $1 AND user_action = $2
ORDER BY decided_at DESC
LIMIT 1`
)

const (
	// The conflict target is (household_key): the household key is this
	// table's full natural key, so two households can never collide on a
	// shared unique constraint.
	stmtUpsertFallbackConfig = `INSERT INTO fallback_configs (household_key, hierarchy, rejection_threshold, time_cutoff_minutes, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (household_key) DO UPDATE SET hierarchy = EXCLUDED.hierarchy, rejection_threshold = EXCLUDED.rejection_threshold, time_cutoff_minutes = EXCLUDED.time_cutoff_minutes, updated_at = EXCLUDED.updated_at`

	stmtSelectFallbackConfig = `SELECT household_key, hierarchy, rejection_threshold, time_cutoff_minutes
FROM fallback_configs
WHERE household_key = $1`
)

// Catalog statements. meals is exempt from household scoping.
const (
	stmtSelectMeal = `SELECT id, name, tags
FROM meals
WHERE id = $1`

	stmtListMeals = `SELECT id, name, tags
FROM meals
ORDER BY name`
)

// Corpus returns every runtime statement, keyed by a stable name. The corpus
// regression test asserts each one passes the analyzer; `dinnerlock vet`
// prints the same result offline.
func Corpus() map[string]string {
	return map[string]string{
		"insert_session":                stmtInsertSession,
		"select_active_session":         stmtSelectActiveSession,
		"select_session":                stmtSelectSession,
		"lock_decision":                 stmtLockDecision,
		"record_rejection":              stmtRecordRejection,
		"close_session":                 stmtCloseSession,
		"insert_decision_event":         stmtInsertDecisionEvent,
		"select_decision_event":         stmtSelectDecisionEvent,
		"select_decision_event_by_hash": stmtSelectDecisionEventByHash,
		"select_latest_rescue":          stmtSelectLatestRescue,
		"upsert_fallback_config":        stmtUpsertFallbackConfig,
		"select_fallback_config":        stmtSelectFallbackConfig,
		"select_meal":                   stmtSelectMeal,
		"list_meals":                    stmtListMeals,
	}
}
