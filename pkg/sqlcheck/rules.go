package sqlcheck

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Every rule below is a pure function over the normalized statement text
// (and the table references extracted from it). Rules never short-circuit
// each other; Validate aggregates whatever each returns.

var (
	bannedKeywordRe = regexp.MustCompile(
		`(?i)\b(DELETE|ALTER|CREATE|DROP|TRUNCATE|COPY|GRANT|REVOKE|EXECUTE)\b`)
	mutationKeywordRe = regexp.MustCompile(
		`(?i)\b(INSERT|UPDATE|DELETE|ALTER|CREATE|DROP|TRUNCATE|COPY|GRANT|REVOKE|EXECUTE)\b`)

	cteRe      = regexp.MustCompile(`(?i)\bWITH\b`)
	subqueryRe = regexp.MustCompile(`(?i)\(\s*SELECT\b`)
	whereRe    = regexp.MustCompile(`(?i)\bWHERE\b`)

	// household_key = $n, optionally alias-qualified.
	tenantPredRe = regexp.MustCompile(
		`(?i)(?:\b([A-Za-z_][A-Za-z0-9_$]*)\.)?\b` + TenantKeyColumn + `\s*=\s*\$([0-9]+)`)

	// $n = household_key: same predicate written backwards. Rejected because
	// the forward-only form keeps the parameter position checkable.
	reversePredRe = regexp.MustCompile(
		`(?i)\$[0-9]+\s*=\s*(?:[A-Za-z_][A-Za-z0-9_$]*\.)?` + TenantKeyColumn + `\b`)

	// IN (...), = ANY (...), and OR-combined tenant predicates all widen or
	// obscure the set of households a statement touches.
	widenedPredRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b` + TenantKeyColumn + `\s+IN\s*\(`),
		regexp.MustCompile(`(?i)\b` + TenantKeyColumn + `\s*=\s*ANY\b`),
		regexp.MustCompile(`(?i)\bOR\s+(?:[A-Za-z_][A-Za-z0-9_$]*\.)?` + TenantKeyColumn + `\b`),
		regexp.MustCompile(`(?i)\b` + TenantKeyColumn + `\s*=\s*\$[0-9]+\s+OR\b`),
	}

	// After Normalize every string literal is ''. A numeric literal can only
	// be a hardcoded key as well.
	literalPredRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b` + TenantKeyColumn + `\s*=\s*''`),
		regexp.MustCompile(`(?i)\b` + TenantKeyColumn + `\s*=\s*[0-9]`),
	}

	conflictConstraintRe = regexp.MustCompile(`(?i)\bON\s+CONFLICT\s+ON\s+CONSTRAINT\b`)
	conflictTargetRe     = regexp.MustCompile(`(?i)\bON\s+CONFLICT\s*\(([^)]*)\)`)
	conflictBareRe       = regexp.MustCompile(`(?i)\bON\s+CONFLICT\s+DO\b`)
)

// checkMultiStatement rejects any statement separator surviving
// normalization. Multi-statement execution is never allowed.
func checkMultiStatement(norm string) []Violation {
	if strings.Contains(norm, ";") {
		return []Violation{{
			Rule:    RuleMultiStatement,
			Message: "statement contains a separator; multi-statement execution is not allowed",
		}}
	}
	return nil
}

// checkBannedKeywords rejects mutation/DDL keywords appearing as whole words.
// Normalization has already removed string literals, so a match here is real
// SQL, not data.
func checkBannedKeywords(norm string) []Violation {
	seen := map[string]bool{}
	var vs []Violation
	for _, m := range bannedKeywordRe.FindAllStringSubmatch(norm, -1) {
		kw := strings.ToUpper(m[1])
		if seen[kw] {
			continue
		}
		seen[kw] = true
		vs = append(vs, Violation{
			Rule:    RuleBannedKeyword,
			Message: fmt.Sprintf("banned keyword %s", kw),
		})
	}
	return vs
}

// checkNestedScopes rejects CTEs and every subquery form on statements that
// touch a tenant table. Predicate coverage inside a nested scope cannot be
// proven by a token-level checker, so nested scopes are excluded entirely.
func checkNestedScopes(norm string, refs []tableRef) []Violation {
	if len(tenantRefs(refs)) == 0 {
		return nil
	}
	var vs []Violation
	if cteRe.MatchString(norm) {
		vs = append(vs, Violation{
			Rule:    RuleCTENotAllowed,
			Message: "CTEs are not allowed in statements touching tenant tables",
		})
	}
	if subqueryRe.MatchString(norm) {
		vs = append(vs, Violation{
			Rule:    RuleSubqueryNotAllowed,
			Message: "subqueries are not allowed in statements touching tenant tables",
		})
	}
	return vs
}

// checkTenantPredicateShape rejects malformed tenant predicates wherever they
// appear: reversed comparisons, IN/ANY/OR widening, and literal key values.
func checkTenantPredicateShape(norm string, refs []tableRef) []Violation {
	if len(tenantRefs(refs)) == 0 {
		return nil
	}
	var vs []Violation
	if reversePredRe.MatchString(norm) {
		vs = append(vs, Violation{
			Rule:    RuleReverseTenantPredicate,
			Message: "tenant predicate must be written column-first ($n = " + TenantKeyColumn + " is rejected)",
		})
	}
	for _, re := range widenedPredRes {
		if re.MatchString(norm) {
			vs = append(vs, Violation{
				Rule:    RuleTenantPredicateWidened,
				Message: "tenant predicate may not be widened with IN, ANY, or OR",
			})
			break
		}
	}
	for _, re := range literalPredRes {
		if re.MatchString(norm) {
			vs = append(vs, Violation{
				Rule:    RuleLiteralTenantValue,
				Message: "tenant key must be bound to a parameter, not a literal",
			})
			break
		}
	}
	return vs
}

// predMatch is one "household_key = $n" occurrence.
type predMatch struct {
	qualifier string // lower-cased alias/table qualifier, "" when bare
	param     int
}

func tenantPredMatches(scope string) []predMatch {
	var out []predMatch
	for _, m := range tenantPredRe.FindAllStringSubmatch(scope, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		out = append(out, predMatch{qualifier: strings.ToLower(m[1]), param: n})
	}
	return out
}

// checkTenantPredicates enforces, per tenant-table reference in FROM, JOIN,
// and UPDATE position, that a household_key equality predicate bound to $1 is
// present. For UPDATE the predicate must live in the WHERE clause; SET
// assignments do not scope the statement. When more than one tenant table is
// referenced, every reference needs its own qualified predicate.
func checkTenantPredicates(norm string, refs []tableRef) []Violation {
	var trefs []tableRef
	for _, r := range tenantRefs(refs) {
		if r.Clause != "insert" { // INSERT column binding is checked separately
			trefs = append(trefs, r)
		}
	}
	if len(trefs) == 0 {
		return nil
	}

	joined := len(trefs) > 1
	var vs []Violation
	for _, r := range trefs {
		missingRule := RuleMissingTenantPredicate
		scope := norm
		if r.Clause == "update" {
			missingRule = RuleUpdateMissingTenantPredicate
			loc := whereRe.FindStringIndex(norm)
			if loc == nil {
				vs = append(vs, Violation{
					Rule:    missingRule,
					Message: fmt.Sprintf("UPDATE on %s has no WHERE clause with a tenant predicate", r.Table),
				})
				continue
			}
			scope = norm[loc[1]:]
		}

		matches := tenantPredMatches(scope)
		var qualified, bare []predMatch
		for _, m := range matches {
			switch m.qualifier {
			case r.Name():
				qualified = append(qualified, m)
			case "":
				bare = append(bare, m)
			}
		}

		if joined {
			if len(qualified) == 0 {
				if len(bare) > 0 {
					vs = append(vs, Violation{
						Rule:    RuleUnqualifiedJoinPredicate,
						Message: fmt.Sprintf("join references %s but its tenant predicate is not qualified with %q", r.Table, r.Name()),
					})
				} else {
					vs = append(vs, Violation{
						Rule:    missingRule,
						Message: fmt.Sprintf("no tenant predicate for %s (as %q)", r.Table, r.Name()),
					})
				}
				continue
			}
			if !anyParamOne(qualified) {
				vs = append(vs, wrongParam(r, qualified))
			}
			continue
		}

		all := append(qualified, bare...)
		if len(all) == 0 {
			vs = append(vs, Violation{
				Rule:    missingRule,
				Message: fmt.Sprintf("no tenant predicate for %s", r.Table),
			})
			continue
		}
		if !anyParamOne(all) {
			vs = append(vs, wrongParam(r, all))
		}
	}
	return vs
}

func anyParamOne(ms []predMatch) bool {
	for _, m := range ms {
		if m.param == 1 {
			return true
		}
	}
	return false
}

func wrongParam(r tableRef, ms []predMatch) Violation {
	return Violation{
		Rule: RuleTenantPredicateWrongParam,
		Message: fmt.Sprintf("tenant predicate for %s binds $%d; the household key is always $1",
			r.Table, ms[0].param),
	}
}

// checkInserts enforces the INSERT-side of the convention on tenant tables:
// the column list must name household_key and bind it to $1, conflict targets
// must be column lists that include household_key, and ON CONFLICT ON
// CONSTRAINT is banned outright because a constraint name is not verifiable
// from statement text.
func checkInserts(norm string, refs []tableRef) []Violation {
	var vs []Violation
	for _, r := range tenantRefs(refs) {
		if r.Clause != "insert" {
			continue
		}

		vs = append(vs, checkInsertTenantBinding(norm, r)...)

		if conflictConstraintRe.MatchString(norm) {
			vs = append(vs, Violation{
				Rule:    RuleConflictOnConstraint,
				Message: "ON CONFLICT ON CONSTRAINT is banned; use a column-list conflict target",
			})
		} else if m := conflictTargetRe.FindStringSubmatch(norm); m != nil {
			if !columnListContains(m[1], TenantKeyColumn) {
				vs = append(vs, Violation{
					Rule:    RuleUnsafeConflictTarget,
					Message: fmt.Sprintf("conflict target on %s must include %s", r.Table, TenantKeyColumn),
				})
			}
		} else if conflictBareRe.MatchString(norm) {
			vs = append(vs, Violation{
				Rule:    RuleUnsafeConflictTarget,
				Message: fmt.Sprintf("ON CONFLICT on %s must name a column-list target including %s", r.Table, TenantKeyColumn),
			})
		}
	}
	return vs
}

// checkInsertTenantBinding verifies household_key appears in the INSERT
// column list and that its VALUES slot is exactly $1.
func checkInsertTenantBinding(norm string, r tableRef) []Violation {
	re := regexp.MustCompile(
		`(?i)\bINSERT\s+INTO\s+(?:"?[A-Za-z0-9_$]+"?\.)?"?` + regexp.QuoteMeta(r.Table) + `"?\s*\(([^()]*)\)\s*VALUES\s*\(`)
	m := re.FindStringSubmatchIndex(norm)
	if m == nil {
		return []Violation{{
			Rule:    RuleInsertMissingTenantKey,
			Message: fmt.Sprintf("INSERT into %s must use an explicit column list with VALUES", r.Table),
		}}
	}

	columns := splitTopLevel(norm[m[2]:m[3]])
	keyIndex := -1
	for i, c := range columns {
		if strings.EqualFold(strings.Trim(c, `" `), TenantKeyColumn) {
			keyIndex = i
			break
		}
	}
	if keyIndex < 0 {
		return []Violation{{
			Rule:    RuleInsertMissingTenantKey,
			Message: fmt.Sprintf("INSERT into %s must list %s in its column list", r.Table, TenantKeyColumn),
		}}
	}

	values := splitTopLevel(balancedSpan(norm[m[1]:]))
	if keyIndex >= len(values) {
		return []Violation{{
			Rule:    RuleInsertMissingTenantKey,
			Message: fmt.Sprintf("INSERT into %s has fewer VALUES than columns", r.Table),
		}}
	}
	slot := strings.TrimSpace(values[keyIndex])
	if slot == "$1" {
		return nil
	}
	if n, ok := paramNumber(slot); ok {
		return []Violation{{
			Rule: RuleTenantPredicateWrongParam,
			Message: fmt.Sprintf("INSERT into %s binds %s to $%d; the household key is always $1",
				r.Table, TenantKeyColumn, n),
		}}
	}
	return []Violation{{
		Rule:    RuleLiteralTenantValue,
		Message: fmt.Sprintf("INSERT into %s must bind %s to $1, not an expression or literal", r.Table, TenantKeyColumn),
	}}
}

// balancedSpan returns the contents of the parenthesized group that the
// input starts just inside of (the VALUES list), honoring nested parens.
func balancedSpan(s string) string {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[:i]
			}
		}
	}
	return s
}

// splitTopLevel splits a comma-separated list, ignoring commas inside nested
// parentheses (e.g. COALESCE($5, now())).
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func columnListContains(list, column string) bool {
	for _, c := range strings.Split(list, ",") {
		if strings.EqualFold(strings.Trim(c, `" `), column) {
			return true
		}
	}
	return false
}

func paramNumber(tok string) (int, bool) {
	if !strings.HasPrefix(tok, "$") {
		return 0, false
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
