// Package sqlident provides sanitization and derivation of SQL
// identifiers (schema, table, and column names) that are interpolated
// into dynamically generated SQL. Values never pass through here; they
// are always bound as query parameters.
package sqlident

import (
	"fmt"
	"regexp"
	"strings"
)

// schemaNamePattern is the only shape a tenant schema name may take:
// "p" followed by the project's numeric ID, nothing else.
var schemaNamePattern = regexp.MustCompile(`^p[0-9]+$`)

// Sanitize strips every character outside [A-Za-z0-9_] from s. The
// result is safe to interpolate as a SQL identifier. Sanitize is
// idempotent: Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SchemaName derives the private schema name for a project ID.
func SchemaName(projectID int) string {
	return fmt.Sprintf("p%d", projectID)
}

// IsTenantSchema reports whether name is a well-formed tenant schema
// name (p<positive integer>).
func IsTenantSchema(name string) bool {
	return schemaNamePattern.MatchString(name) && name != "p0"
}

// Quote wraps an already-sanitized identifier in double quotes so it
// survives case-sensitive and keyword-colliding names.
func Quote(ident string) string {
	return `"` + ident + `"`
}
