// Package firewall inspects raw SQL text before it reaches the shared
// cluster. It is a pure text-analysis stage with no I/O: given a
// statement and the caller's allowed schema set, it either passes the
// statement through untouched or rejects it with a categorized
// violation.
//
// The checks are deny-by-pattern, not a full SQL parse. Sufficiently
// obfuscated SQL can evade them; the search-path binding in the query
// executor remains the primary isolation mechanism. What the firewall
// guarantees is that the common destructive and cross-schema shapes
// never reach the database at all.
package firewall

import (
	"regexp"
	"strings"
)

// Violation categories.
const (
	CategoryDestructive  = "destructive_statement"
	CategorySystemTable  = "system_table_ddl"
	CategorySchemaEscape = "schema_escape"
)

// Violation describes why a statement was rejected.
type Violation struct {
	Category string // one of the Category* constants
	Hint     string // human-readable explanation for the caller
}

// destructivePatterns match statements that act outside any single
// tenant's schema and therefore can never be made safe by search-path
// scoping. Matched case-insensitively against the whole statement.
var destructivePatterns = []struct {
	re   *regexp.Regexp
	hint string
}{
	{regexp.MustCompile(`(?is)\bdrop\s+database\b`), "DROP DATABASE is not permitted"},
	{regexp.MustCompile(`(?is)\btruncate\s+.*\bcascade\b`), "cascading TRUNCATE is not permitted"},
	{regexp.MustCompile(`(?is)\balter\s+system\b`), "ALTER SYSTEM is not permitted"},
	{regexp.MustCompile(`(?is)\bpg_terminate_backend\b`), "terminating backend processes is not permitted"},
	{regexp.MustCompile(`(?is)\bpg_cancel_backend\b`), "cancelling backend processes is not permitted"},
	{regexp.MustCompile(`(?is)\bgrant\b.*\bto\b`), "GRANT is not permitted"},
	{regexp.MustCompile(`(?is)\brevoke\b.*\bfrom\b`), "REVOKE is not permitted"},
	{regexp.MustCompile(`(?is)\b(create|alter|drop)\s+(role|user)\b`), "role and user management is not permitted"},
	{regexp.MustCompile(`(?is)\bset\s+(session\s+authorization|role)\b`), "switching the active role is not permitted"},
}

// systemTables back the gateway's own control plane. DDL targeting any
// of them is rejected regardless of schema qualification.
var systemTables = []string{
	"users",
	"projects",
	"project_members",
	"api_keys",
	"webhooks",
	"table_registry",
	"sessions",
	"vault_secrets",
	"audit_log",
	"permissions",
}

// ddlTargetPattern extracts the target table of a DDL statement:
// CREATE/ALTER/DROP/TRUNCATE TABLE, optionally IF [NOT] EXISTS,
// optionally schema-qualified, optionally quoted.
var ddlTargetPattern = regexp.MustCompile(
	`(?is)\b(create|alter|drop|truncate)\s+table\s+(if\s+(not\s+)?exists\s+)?` +
		`(?:("?[a-zA-Z_][a-zA-Z0-9_]*"?)\s*\.\s*)?("?[a-zA-Z_][a-zA-Z0-9_]*"?)`)

// qualifiedRefPattern finds schema-qualified references in table
// position: an identifier followed by a dot right after FROM, JOIN,
// INTO, UPDATE, TABLE, or TRUNCATE. Only table position is scanned.
// A dotted prefix anywhere else is a table alias or a table name
// qualifying a column (u.id, widgets.id), never a schema, and flagging
// those would reject ordinary aliased queries.
var qualifiedRefPattern = regexp.MustCompile(
	`(?is)\b(?:from|join|into|update|table|truncate)\s+(?:only\s+)?` +
		`(?:"([a-zA-Z_][a-zA-Z0-9_]*)"|([a-zA-Z_][a-zA-Z0-9_]*))\s*\.`)

// schemasAlwaysAllowed may be referenced by any caller in addition to
// its own tenant schema.
var schemasAlwaysAllowed = map[string]bool{
	"public":             true,
	"information_schema": true,
}

// Inspect analyzes a raw SQL statement. allowedSchemas lists the
// tenant schemas the caller may reference explicitly (public and
// information_schema are always allowed). A nil return means the
// statement passed every check.
func Inspect(sql string, allowedSchemas []string) *Violation {
	if v := checkDestructive(sql); v != nil {
		return v
	}
	if v := checkSystemTableDDL(sql); v != nil {
		return v
	}
	return checkSchemaEscape(sql, allowedSchemas)
}

// InspectPrivileged runs only the destructive and system-table checks.
// Admin callers may reference any schema, but destructive statements
// and control-plane DDL stay blocked even for them.
func InspectPrivileged(sql string) *Violation {
	if v := checkDestructive(sql); v != nil {
		return v
	}
	return checkSystemTableDDL(sql)
}

func checkDestructive(sql string) *Violation {
	for _, p := range destructivePatterns {
		if p.re.MatchString(sql) {
			return &Violation{Category: CategoryDestructive, Hint: p.hint}
		}
	}
	return nil
}

func checkSystemTableDDL(sql string) *Violation {
	m := ddlTargetPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil
	}
	target := strings.ToLower(strings.Trim(m[5], `"`))
	for _, name := range systemTables {
		if target == name {
			return &Violation{
				Category: CategorySystemTable,
				Hint:     "DDL targeting protected table " + name + " is not permitted",
			}
		}
	}
	return nil
}

func checkSchemaEscape(sql string, allowedSchemas []string) *Violation {
	allowed := make(map[string]bool, len(allowedSchemas))
	for _, s := range allowedSchemas {
		allowed[strings.ToLower(s)] = true
	}
	for _, m := range qualifiedRefPattern.FindAllStringSubmatch(sql, -1) {
		schema := m[1]
		if schema == "" {
			schema = m[2]
		}
		schema = strings.ToLower(schema)
		if schemasAlwaysAllowed[schema] || allowed[schema] {
			continue
		}
		// Treat pg_catalog as readable; it is visible to every role
		// anyway.
		if schema == "pg_catalog" {
			continue
		}
		return &Violation{
			Category: CategorySchemaEscape,
			Hint:     "reference to schema " + schema + " is outside your allowed set",
		}
	}
	return nil
}
