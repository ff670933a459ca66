package events

import "regexp"

// Event types carried in deliveries. Wildcard registrations use "*".
const (
	EventInsert   = "INSERT"
	EventUpdate   = "UPDATE"
	EventDelete   = "DELETE"
	EventWildcard = "*"
)

// Best-effort target extraction from mutation statements. Statements
// that match none of these shapes are silently skipped; the notifier
// is advisory and must never fail the originating request.
var mutationTargets = []struct {
	re    *regexp.Regexp
	event string
}{
	{regexp.MustCompile(`(?is)^\s*insert\s+into\s+(?:"?[a-zA-Z_][a-zA-Z0-9_]*"?\s*\.\s*)?"?([a-zA-Z_][a-zA-Z0-9_]*)"?`), EventInsert},
	{regexp.MustCompile(`(?is)^\s*update\s+(?:only\s+)?(?:"?[a-zA-Z_][a-zA-Z0-9_]*"?\s*\.\s*)?"?([a-zA-Z_][a-zA-Z0-9_]*)"?`), EventUpdate},
	{regexp.MustCompile(`(?is)^\s*delete\s+from\s+(?:only\s+)?(?:"?[a-zA-Z_][a-zA-Z0-9_]*"?\s*\.\s*)?"?([a-zA-Z_][a-zA-Z0-9_]*)"?`), EventDelete},
}

var createTablePattern = regexp.MustCompile(
	`(?is)^\s*create\s+table\s+(?:if\s+not\s+exists\s+)?(?:"?[a-zA-Z_][a-zA-Z0-9_]*"?\s*\.\s*)?"?([a-zA-Z_][a-zA-Z0-9_]*)"?`)

// ExtractMutation identifies the target table and event type of an
// INSERT, UPDATE, or DELETE statement. ok is false for anything else.
func ExtractMutation(sql string) (table, event string, ok bool) {
	for _, t := range mutationTargets {
		if m := t.re.FindStringSubmatch(sql); m != nil {
			return m[1], t.event, true
		}
	}
	return "", "", false
}

// ExtractCreatedTable returns the table name of a CREATE TABLE
// statement, for best-effort table-registry bookkeeping.
func ExtractCreatedTable(sql string) (string, bool) {
	if m := createTablePattern.FindStringSubmatch(sql); m != nil {
		return m[1], true
	}
	return "", false
}
