// Package rows builds parameterized SQL for the structured row CRUD
// endpoints. Callers supply a table name and column/value maps, never
// raw SQL fragments: every identifier passes through the sanitizer
// before interpolation, and every value is bound as a parameter.
package rows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-host/lattice-gateway/internal/database"
	"github.com/lattice-host/lattice-gateway/internal/sqlident"
)

// Builder errors.
var (
	ErrNoTable    = errors.New("rows: table name required")
	ErrNoData     = errors.New("rows: data map must not be empty")
	ErrEmptyWhere = errors.New("rows: where map must not be empty")
)

// OwnerColumn is the conventional tenant-ownership column. Tables that
// carry it get their CRUD reads filtered by the resolved tenant.
const OwnerColumn = "project_id"

// ReadParams describes a structured read.
type ReadParams struct {
	Schema   string
	Table    string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string // "asc" or "desc"

	// FilterProject, when positive, adds WHERE project_id = $1.
	FilterProject int
}

// qualify sanitizes and quotes a schema-qualified table reference.
// An empty schema yields a bare table name resolved by search path.
func qualify(schema, table string) (string, error) {
	t := sqlident.Sanitize(table)
	if t == "" {
		return "", ErrNoTable
	}
	if schema == "" {
		return sqlident.Quote(t), nil
	}
	s := sqlident.Sanitize(schema)
	if s == "" {
		return "", fmt.Errorf("rows: invalid schema %q", schema)
	}
	return sqlident.Quote(s) + "." + sqlident.Quote(t), nil
}

// sortedKeys gives deterministic column order for generated SQL.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildSelect produces a paginated SELECT for the table.
func BuildSelect(p ReadParams) (string, []any, error) {
	target, err := qualify(p.Schema, p.Table)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	params := []any{}

	sb.WriteString("SELECT * FROM " + target)

	if p.FilterProject > 0 {
		params = append(params, p.FilterProject)
		sb.WriteString(fmt.Sprintf(" WHERE %s = $%d", sqlident.Quote(OwnerColumn), len(params)))
	}

	if p.OrderBy != "" {
		col := sqlident.Sanitize(p.OrderBy)
		if col != "" {
			dir := "ASC"
			if strings.EqualFold(p.OrderDir, "desc") {
				dir = "DESC"
			}
			sb.WriteString(" ORDER BY " + sqlident.Quote(col) + " " + dir)
		}
	}

	limit := p.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	params = append(params, limit)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(params)))

	if p.Offset > 0 {
		params = append(params, p.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(params)))
	}

	return sb.String(), params, nil
}

// BuildInsert produces INSERT ... RETURNING * for the column/value map.
func BuildInsert(schema, table string, data map[string]any) (string, []any, error) {
	target, err := qualify(schema, table)
	if err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, ErrNoData
	}

	cols := []string{}
	placeholders := []string{}
	params := []any{}
	for _, k := range sortedKeys(data) {
		col := sqlident.Sanitize(k)
		if col == "" {
			return "", nil, fmt.Errorf("rows: invalid column %q", k)
		}
		params = append(params, data[k])
		cols = append(cols, sqlident.Quote(col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(params)))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		target, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return sql, params, nil
}

// BuildUpdate produces UPDATE ... SET ... WHERE ... RETURNING *.
// The where map must be non-empty: an unconditional update is always a
// caller mistake at this layer.
func BuildUpdate(schema, table string, data, where map[string]any) (string, []any, error) {
	target, err := qualify(schema, table)
	if err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, ErrNoData
	}
	if len(where) == 0 {
		return "", nil, ErrEmptyWhere
	}

	params := []any{}

	sets := []string{}
	for _, k := range sortedKeys(data) {
		col := sqlident.Sanitize(k)
		if col == "" {
			return "", nil, fmt.Errorf("rows: invalid column %q", k)
		}
		params = append(params, data[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", sqlident.Quote(col), len(params)))
	}

	conds, params, err := buildConds(where, params)
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *",
		target, strings.Join(sets, ", "), strings.Join(conds, " AND "))
	return sql, params, nil
}

// BuildDelete produces DELETE FROM ... WHERE ... RETURNING *, with the
// same non-empty where requirement as BuildUpdate.
func BuildDelete(schema, table string, where map[string]any) (string, []any, error) {
	target, err := qualify(schema, table)
	if err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, ErrEmptyWhere
	}

	conds, params, err := buildConds(where, []any{})
	if err != nil {
		return "", nil, err
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *",
		target, strings.Join(conds, " AND "))
	return sql, params, nil
}

func buildConds(where map[string]any, params []any) ([]string, []any, error) {
	conds := []string{}
	for _, k := range sortedKeys(where) {
		col := sqlident.Sanitize(k)
		if col == "" {
			return nil, nil, fmt.Errorf("rows: invalid column %q", k)
		}
		if where[k] == nil {
			conds = append(conds, sqlident.Quote(col)+" IS NULL")
			continue
		}
		params = append(params, where[k])
		conds = append(conds, fmt.Sprintf("%s = $%d", sqlident.Quote(col), len(params)))
	}
	return conds, params, nil
}

// Inspector answers schema questions for the CRUD read path.
type Inspector struct {
	db *database.DB
}

// NewInspector creates an Inspector.
func NewInspector(db *database.DB) *Inspector {
	return &Inspector{db: db}
}

// TableExists reports whether the table is present in the schema.
func (i *Inspector) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := i.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM information_schema.tables
		   WHERE table_schema = $1 AND table_name = $2
		 )`,
		schema, table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("rows: table exists %s.%s: %w", schema, table, err)
	}
	return exists, nil
}

// HasOwnerColumn reports whether the table carries the conventional
// tenant-ownership column.
func (i *Inspector) HasOwnerColumn(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := i.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM information_schema.columns
		   WHERE table_schema = $1 AND table_name = $2 AND column_name = $3
		 )`,
		schema, table, OwnerColumn,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("rows: has owner column %s.%s: %w", schema, table, err)
	}
	return exists, nil
}
