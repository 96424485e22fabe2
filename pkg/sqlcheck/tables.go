package sqlcheck

import (
	"regexp"
	"strings"
)

// TenantKeyColumn is the column that scopes a row to a household. For every
// tenant-scoped statement the fixed protocol convention is that positional
// parameter $1 binds this column.
const TenantKeyColumn = "household_key"

// tenantTables is the single source of truth for which tables are
// household-scoped. The storage adapter's statements and the migration DDL
// are written against this registry; adding a tenant table without
// registering it here makes every statement touching it fail validation
// with missing_tenant_predicate... which is the point.
var tenantTables = map[string]bool{
	"sessions":         true,
	"decision_events":  true,
	"fallback_configs": true,
}

// exemptTables are shared, non-tenant-scoped entities (the recommendation
// catalog). The analyzer never requires a tenant predicate for them.
var exemptTables = map[string]bool{
	"meals": true,
}

// IsTenantTable reports whether the (unquoted, unqualified, lower-cased)
// table name is household-scoped.
func IsTenantTable(name string) bool {
	return tenantTables[strings.ToLower(name)]
}

// IsExemptTable reports whether the table is part of the shared catalog.
func IsExemptTable(name string) bool {
	return exemptTables[strings.ToLower(name)]
}

// TenantTables returns the registered tenant-scoped table names.
func TenantTables() []string {
	names := make([]string, 0, len(tenantTables))
	for name := range tenantTables {
		names = append(names, name)
	}
	return names
}

// tableRef is one table reference extracted from a statement.
type tableRef struct {
	Table  string // unquoted, schema-stripped, lower-cased
	Alias  string // lower-cased; empty when the reference has no alias
	Clause string // "from", "join", "update", or "insert"
}

// Name returns the identifier a qualified predicate must use for this
// reference: the alias when one is declared, the table name otherwise.
func (r tableRef) Name() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Table
}

// refKeywords are tokens that can follow a table name without being an
// alias. Without this list, "UPDATE sessions SET ..." would read SET as an
// alias and "... DO UPDATE SET ..." would read SET as a table.
var refKeywords = map[string]bool{
	"as": true, "set": true, "where": true, "on": true, "using": true,
	"join": true, "inner": true, "left": true, "right": true, "full": true,
	"cross": true, "outer": true, "natural": true, "group": true,
	"order": true, "limit": true, "offset": true, "values": true,
	"select": true, "returning": true, "having": true, "union": true,
	"intersect": true, "except": true, "and": true, "or": true, "not": true,
	"for": true, "do": true, "conflict": true,
}

// tableRefRe matches FROM/JOIN/UPDATE/INSERT INTO references with optional
// schema qualification, optional quoting, and an optional alias.
var tableRefRe = regexp.MustCompile(
	`(?i)\b(FROM|JOIN|UPDATE|INSERT\s+INTO)\s+` +
		`(?:("?[A-Za-z_][A-Za-z0-9_$]*"?)\.)?` + // schema.
		`("?[A-Za-z_][A-Za-z0-9_$]*"?)` + // table
		`(?:\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_$]*))?`) // alias

// extractTableRefs finds every table reference in a normalized statement.
// References whose "table" token is actually a keyword (e.g. the UPDATE in
// ON CONFLICT DO UPDATE SET) are discarded.
func extractTableRefs(norm string) []tableRef {
	var refs []tableRef
	for _, m := range tableRefRe.FindAllStringSubmatch(norm, -1) {
		clause := strings.ToLower(whitespaceRe.ReplaceAllString(m[1], " "))
		if clause == "insert into" {
			clause = "insert"
		}

		table := strings.ToLower(strings.Trim(m[3], `"`))
		if refKeywords[table] {
			continue
		}

		alias := strings.ToLower(m[4])
		if refKeywords[alias] {
			alias = ""
		}

		refs = append(refs, tableRef{Table: table, Alias: alias, Clause: clause})
	}
	return refs
}

// tenantRefs filters refs down to household-scoped tables.
func tenantRefs(refs []tableRef) []tableRef {
	var out []tableRef
	for _, r := range refs {
		if IsTenantTable(r.Table) {
			out = append(out, r)
		}
	}
	return out
}
