package sqlcheck_test

import (
	"testing"

	"github.com/RogueScr1be/dinnerlock"
	"github.com/RogueScr1be/dinnerlock/pkg/sqlcheck"
)

func hasRule(vs []sqlcheck.Violation, rule sqlcheck.Rule) bool {
	for _, v := range vs {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func assertRule(t *testing.T, sql string, rule sqlcheck.Rule) {
	t.Helper()
	vs := sqlcheck.Validate(sql)
	if !hasRule(vs, rule) {
		t.Errorf("Validate(%q) = %v, want rule %s", sql, vs, rule)
	}
}

func assertClean(t *testing.T, sql string) {
	t.Helper()
	if vs := sqlcheck.Validate(sql); len(vs) != 0 {
		t.Errorf("Validate(%q) = %v, want no violations", sql, vs)
	}
}

func TestValidate_MultiStatement(t *testing.T) {
	assertRule(t, "SELECT id FROM meals; SELECT id FROM meals", sqlcheck.RuleMultiStatement)
}

func TestValidate_BannedKeywords(t *testing.T) {
	assertRule(t, "DROP TABLE sessions", sqlcheck.RuleBannedKeyword)
	assertRule(t, "DELETE FROM decision_events WHERE household_key = $1", sqlcheck.RuleBannedKeyword)
	assertRule(t, "TRUNCATE sessions", sqlcheck.RuleBannedKeyword)

	// Banned words inside literals are data, not SQL.
	assertClean(t, "SELECT id FROM meals WHERE name = 'DROP CREATE DELETE'")
}

func TestValidate_MissingTenantPredicate(t *testing.T) {
	assertRule(t, "SELECT id FROM sessions", sqlcheck.RuleMissingTenantPredicate)
	assertRule(t, "SELECT id FROM sessions WHERE outcome = $1", sqlcheck.RuleMissingTenantPredicate)
}

func TestValidate_TenantPredicateParamPosition(t *testing.T) {
	assertRule(t, "SELECT id FROM sessions WHERE household_key = $2 AND id = $1",
		sqlcheck.RuleTenantPredicateWrongParam)
	assertClean(t, "SELECT id FROM sessions WHERE household_key = $1 AND id = $2")
}

func TestValidate_ReversePredicate(t *testing.T) {
	assertRule(t, "SELECT id FROM sessions WHERE $1 = household_key",
		sqlcheck.RuleReverseTenantPredicate)
}

func TestValidate_WidenedPredicates(t *testing.T) {
	assertRule(t, "SELECT id FROM sessions WHERE household_key IN ($1, $2)",
		sqlcheck.RuleTenantPredicateWidened)
	assertRule(t, "SELECT id FROM sessions WHERE household_key = ANY($1)",
		sqlcheck.RuleTenantPredicateWidened)
	assertRule(t, "SELECT id FROM sessions WHERE household_key = $1 OR household_key = $2",
		sqlcheck.RuleTenantPredicateWidened)
	assertRule(t, "SELECT id FROM sessions WHERE outcome = $2 OR household_key = $1",
		sqlcheck.RuleTenantPredicateWidened)
}

func TestValidate_LiteralTenantValue(t *testing.T) {
	assertRule(t, "SELECT id FROM sessions WHERE household_key = 'hh-1'",
		sqlcheck.RuleLiteralTenantValue)
	assertRule(t, "SELECT id FROM sessions WHERE household_key = 42",
		sqlcheck.RuleLiteralTenantValue)
}

func TestValidate_JoinQualification(t *testing.T) {
	// Every tenant reference in a join needs its own qualified predicate.
	assertClean(t, "SELECT s.id, d.payload FROM sessions s JOIN decision_events d ON d.id = s.decision_id WHERE s.household_key = $1 AND d.household_key = $1")

	// An unqualified predicate in a join only constrains one side.
	assertRule(t, "SELECT s.id FROM sessions s JOIN decision_events d ON d.id = s.decision_id WHERE household_key = $1 AND d.household_key = $1",
		sqlcheck.RuleUnqualifiedJoinPredicate)

	// One side missing entirely.
	assertRule(t, "SELECT s.id FROM sessions s JOIN decision_events d ON d.id = s.decision_id WHERE s.household_key = $1",
		sqlcheck.RuleMissingTenantPredicate)
}

func TestValidate_JoinWithExemptTable(t *testing.T) {
	// The catalog side of a join needs no predicate; only one tenant table is
	// referenced here, so a bare predicate is fine too.
	assertClean(t, "SELECT s.id, m.name FROM sessions s JOIN meals m ON m.id = s.decision_id WHERE s.household_key = $1")
}

func TestValidate_UpdateRules(t *testing.T) {
	// An UPDATE whose WHERE clause carries no tenant predicate.
	assertRule(t, "UPDATE sessions SET outcome = $2 WHERE id = $3",
		sqlcheck.RuleUpdateMissingTenantPredicate)

	// No WHERE at all.
	assertRule(t, "UPDATE sessions SET rejection_count = 0",
		sqlcheck.RuleUpdateMissingTenantPredicate)

	// A SET assignment does not scope the statement.
	assertRule(t, "UPDATE sessions SET household_key = $1",
		sqlcheck.RuleUpdateMissingTenantPredicate)

	assertClean(t, "UPDATE sessions SET outcome = $3, updated_at = now() WHERE household_key = $1 AND id = $2")
}

func TestValidate_InsertRules(t *testing.T) {
	assertClean(t, "INSERT INTO decision_events (household_key, id, decided_at, payload) VALUES ($1, $2, $3, $4)")

	assertRule(t, "INSERT INTO decision_events (id, decided_at, payload) VALUES ($1, $2, $3)",
		sqlcheck.RuleInsertMissingTenantKey)

	assertRule(t, "INSERT INTO sessions (id, household_key) VALUES ($1, $2)",
		sqlcheck.RuleTenantPredicateWrongParam)

	assertRule(t, "INSERT INTO sessions (id, household_key) VALUES ($2, 'hh-1')",
		sqlcheck.RuleLiteralTenantValue)
}

func TestValidate_ConflictTargets(t *testing.T) {
	assertClean(t, "INSERT INTO fallback_configs (household_key, hierarchy) VALUES ($1, $2) ON CONFLICT (household_key) DO UPDATE SET hierarchy = EXCLUDED.hierarchy")

	assertRule(t, "INSERT INTO fallback_configs (household_key, hierarchy) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		sqlcheck.RuleUnsafeConflictTarget)

	assertRule(t, "INSERT INTO fallback_configs (household_key, hierarchy) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		sqlcheck.RuleUnsafeConflictTarget)

	assertRule(t, "INSERT INTO fallback_configs (household_key, hierarchy) VALUES ($1, $2) ON CONFLICT ON CONSTRAINT fallback_configs_pkey DO NOTHING",
		sqlcheck.RuleConflictOnConstraint)
}

func TestValidate_NestedScopes(t *testing.T) {
	assertRule(t, "WITH x AS (SELECT id FROM sessions WHERE household_key = $1) SELECT id FROM x",
		sqlcheck.RuleCTENotAllowed)

	assertRule(t, "SELECT id FROM sessions WHERE household_key = $1 AND decision_id = (SELECT id FROM decision_events WHERE household_key = $1)",
		sqlcheck.RuleSubqueryNotAllowed)

	assertRule(t, "SELECT id FROM sessions WHERE household_key = $1 AND EXISTS (SELECT 1 FROM decision_events WHERE household_key = $1)",
		sqlcheck.RuleSubqueryNotAllowed)

	// Catalog statements are outside the tenant contract; nested scopes are
	// tolerated there.
	assertClean(t, "SELECT id FROM meals WHERE id IN (SELECT meal_id FROM pantry)")
}

func TestValidate_ExemptCatalog(t *testing.T) {
	assertClean(t, "SELECT id, name, tags FROM meals ORDER BY name")
	assertClean(t, "SELECT id, name, tags FROM meals WHERE id = $1")
}

func TestAssert_WrapsContractViolation(t *testing.T) {
	err := sqlcheck.Assert("UPDATE sessions SET outcome = $2 WHERE id = $3")
	if err == nil {
		t.Fatal("expected error for unsafe UPDATE")
	}
	if !dinnerlock.IsContractViolationErr(err) {
		t.Errorf("expected IsContractViolationErr, got %v", err)
	}

	if err := sqlcheck.Assert("SELECT id FROM sessions WHERE household_key = $1"); err != nil {
		t.Errorf("Assert on a safe statement: %v", err)
	}
}

func TestIsReadOnly(t *testing.T) {
	cases := []struct {
		sql  string
		want bool
	}{
		{"SELECT id FROM sessions WHERE household_key = $1", true},
		{"  -- preflight\n  SELECT 1", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"INSERT INTO decision_events (household_key, id) VALUES ($1, $2)", false},
		{"UPDATE sessions SET outcome = $3 WHERE household_key = $1 AND id = $2", false},
		// A write hidden inside a CTE still reads as WITH first.
		{"WITH x AS (UPDATE sessions SET outcome = 'abandoned' WHERE household_key = $1) SELECT 1", false},
		{"TRUNCATE sessions", false},
	}
	for _, tc := range cases {
		if got := sqlcheck.IsReadOnly(tc.sql); got != tc.want {
			t.Errorf("IsReadOnly(%q) = %v, want %v", tc.sql, got, tc.want)
		}
	}
}

func TestTableRegistry(t *testing.T) {
	for _, name := range []string{"sessions", "decision_events", "fallback_configs"} {
		if !sqlcheck.IsTenantTable(name) {
			t.Errorf("IsTenantTable(%q) = false, want true", name)
		}
	}
	if sqlcheck.IsTenantTable("meals") {
		t.Error("meals must not be tenant-scoped")
	}
	if !sqlcheck.IsExemptTable("meals") {
		t.Error("meals must be registered as catalog-exempt")
	}
	if got := len(sqlcheck.TenantTables()); got != 3 {
		t.Errorf("TenantTables() returned %d names, want 3", got)
	}
}
