// Package sqlcheck is a static safety analyzer for the SQL statements the
// storage adapter dispatches to PostgreSQL. It decides, from statement text
// alone, whether a parameterized statement addressed at household-scoped
// tables can leak or corrupt another household's data - before the statement
// ever executes, and without a real SQL parser.
//
// # Contract
//
// Every statement sent to the relational backend must pass Assert first. A
// violation is always fatal: it indicates a programming error in the
// statement, never a transient condition, and is intended to be caught by the
// statement corpus tests rather than observed in production.
//
// # The fixed protocol convention
//
// For every statement touching a tenant-scoped table, positional parameter $1
// is the household key, and each referenced tenant table must carry an
// equality predicate binding its household_key column to $1. In joins, every
// tenant reference needs its own alias-qualified predicate; an unqualified
// predicate only constrains one side.
//
// # Deliberate over-rejection
//
// The analyzer bans whole syntactic categories rather than attempting a sound
// general SQL parse: multi-statement text, mutation/DDL keywords, CTEs and
// every subquery form on tenant tables, IN/ANY/OR-combined and reversed and
// literal tenant predicates, and constraint-named conflict targets. Proving
// predicate coverage inside nested scopes is out of scope for a token-level
// checker, so nested scopes are excluded entirely. Flat queries only.
//
// # Usage
//
//	if vs := sqlcheck.Validate(stmt); len(vs) > 0 { ... } // offline, in tests
//	if err := sqlcheck.Assert(stmt); err != nil { ... }   // at dispatch time
//
// Each rule yields a distinct code so failures are attributable and
// independently testable.
package sqlcheck

import (
	"fmt"
	"strings"

	"github.com/RogueScr1be/dinnerlock"
)

// Rule identifies one analyzer rule. Every violation carries the code of the
// rule that produced it.
type Rule string

// Rule codes, one per check.
const (
	RuleMultiStatement               Rule = "multi_statement"
	RuleBannedKeyword                Rule = "banned_keyword"
	RuleMissingTenantPredicate       Rule = "missing_tenant_predicate"
	RuleTenantPredicateWrongParam    Rule = "tenant_predicate_wrong_param"
	RuleReverseTenantPredicate       Rule = "reverse_tenant_predicate"
	RuleTenantPredicateWidened       Rule = "tenant_predicate_widened"
	RuleLiteralTenantValue           Rule = "literal_tenant_value"
	RuleUnqualifiedJoinPredicate     Rule = "unqualified_join_predicate"
	RuleUpdateMissingTenantPredicate Rule = "update_missing_tenant_predicate"
	RuleInsertMissingTenantKey       Rule = "insert_missing_tenant_key"
	RuleUnsafeConflictTarget         Rule = "unsafe_conflict_target"
	RuleConflictOnConstraint         Rule = "conflict_on_constraint"
	RuleCTENotAllowed                Rule = "cte_not_allowed"
	RuleSubqueryNotAllowed           Rule = "subquery_not_allowed"
)

// Violation is one rule failure. Violations are values, not errors; Assert
// wraps them into dinnerlock.ErrContractViolation at the boundary.
type Violation struct {
	Rule    Rule
	Message string
}

// String renders the violation as "rule: message".
func (v Violation) String() string {
	return string(v.Rule) + ": " + v.Message
}

// Validate runs every rule against the statement and returns all violations.
// It is a pure function with no side effects, usable offline as a static test
// over a fixed corpus of statements.
func Validate(sql string) []Violation {
	norm := Normalize(sql)
	refs := extractTableRefs(norm)

	var vs []Violation
	vs = append(vs, checkMultiStatement(norm)...)
	vs = append(vs, checkBannedKeywords(norm)...)
	vs = append(vs, checkNestedScopes(norm, refs)...)
	vs = append(vs, checkTenantPredicateShape(norm, refs)...)
	vs = append(vs, checkTenantPredicates(norm, refs)...)
	vs = append(vs, checkInserts(norm, refs)...)
	return vs
}

// Assert validates the statement and returns an error wrapping
// dinnerlock.ErrContractViolation if any rule fails. The error message names
// every violated rule so a single test failure is fully attributable.
func Assert(sql string) error {
	vs := Validate(sql)
	if len(vs) == 0 {
		return nil
	}
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.String()
	}
	return fmt.Errorf("%w: %s", dinnerlock.ErrContractViolation, strings.Join(msgs, "; "))
}

// IsReadOnly reports whether a statement is safe to dispatch while the
// storage adapter is in readonly mode. The first keyword (after comment and
// whitespace stripping) must be SELECT or WITH, and no mutation keyword may
// appear anywhere in the normalized text - the second check catches writes
// hidden inside a CTE such as "WITH x AS (UPDATE ...) SELECT ...".
func IsReadOnly(sql string) bool {
	norm := Normalize(sql)
	switch firstKeyword(norm) {
	case "SELECT", "WITH":
	default:
		return false
	}
	return !mutationKeywordRe.MatchString(norm)
}
