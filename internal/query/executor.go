// Package query executes vetted SQL against the shared pool. It owns
// the two most safety-critical behaviors on the hot path: re-binding
// the schema search path on every call, and bounding each statement
// with its own timeout so a slow query cannot pin a pooled connection
// indefinitely.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lattice-host/lattice-gateway/internal/database"
	"github.com/lattice-host/lattice-gateway/internal/sqlident"
)

// Field describes one column of a result set.
type Field struct {
	Name       string `json:"name"`
	DataTypeID uint32 `json:"dataTypeID"`
}

// Result is the shaped outcome of a successful statement.
type Result struct {
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"rowCount"`
	Fields          []Field          `json:"fields"`
	Command         string           `json:"command"`
	ExecutionTimeMs int64            `json:"executionTime"`
	IsMutation      bool             `json:"-"`
}

// EngineError carries the engine-provided diagnostics for a failed
// statement. Callers are trusted tenant operators running their own
// SQL, so message, position, hint, and detail are passed through;
// credentials and connection details never appear here.
type EngineError struct {
	Message  string
	Code     string
	Position int
	Hint     string
	Detail   string
}

func (e *EngineError) Error() string {
	return "query: " + e.Message
}

// Executor runs statements on the shared pool.
type Executor struct {
	db      *database.DB
	timeout time.Duration
}

// NewExecutor creates an Executor. timeout bounds each statement;
// zero or negative disables the per-statement bound.
func NewExecutor(db *database.DB, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

// Classify splits a statement into its leading command word
// (uppercased) and whether it is a read. Reads are SELECT statements;
// everything else is treated as a mutation.
func Classify(sql string) (command string, isRead bool) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "", false
	}
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '(' || r == ';'
	})
	if end == -1 {
		end = len(trimmed)
	}
	command = strings.ToUpper(trimmed[:end])
	return command, command == "SELECT"
}

// Execute runs one statement. When projectID is positive the session's
// search path is pinned to the tenant schema plus public immediately
// before the statement runs, on the same pooled connection. Pooled
// connections are reused across tenants between requests, so this
// re-bind must happen on EVERY call: a stale search path from a prior
// tenant is a cross-tenant data leak, not merely a bug.
func (e *Executor) Execute(ctx context.Context, sql string, params []any, projectID int) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	conn, err := e.db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: acquire connection: %w", err)
	}
	defer conn.Release()

	if projectID > 0 {
		schema := sqlident.SchemaName(projectID)
		if !sqlident.IsTenantSchema(schema) {
			return nil, fmt.Errorf("query: invalid tenant schema %q", schema)
		}
		// SET cannot take bind parameters; the schema name is derived
		// from a numeric ID and re-validated above.
		setPath := fmt.Sprintf(`SET search_path TO %s, public`, sqlident.Quote(schema))
		if _, err := conn.Exec(ctx, setPath); err != nil {
			return nil, fmt.Errorf("query: bind search path: %w", err)
		}
	}

	command, isRead := Classify(sql)
	start := time.Now()

	rows, err := conn.Query(ctx, sql, params...)
	if err != nil {
		return nil, wrapEngineError(err)
	}

	fds := rows.FieldDescriptions()
	fields := make([]Field, len(fds))
	for i, fd := range fds {
		fields[i] = Field{Name: string(fd.Name), DataTypeID: fd.DataTypeOID}
	}

	shaped := []map[string]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return nil, wrapEngineError(err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		shaped = append(shaped, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapEngineError(err)
	}

	rowCount := len(shaped)
	if rowCount == 0 {
		// Mutations without RETURNING report engine-side affected rows.
		if affected := rows.CommandTag().RowsAffected(); affected > 0 {
			rowCount = int(affected)
		}
	}

	return &Result{
		Rows:            shaped,
		RowCount:        rowCount,
		Fields:          fields,
		Command:         command,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		IsMutation:      !isRead,
	}, nil
}

// wrapEngineError converts pgx errors into EngineError, preserving the
// engine diagnostics the caller is entitled to see.
func wrapEngineError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &EngineError{
			Message:  pgErr.Message,
			Code:     pgErr.Code,
			Position: int(pgErr.Position),
			Hint:     pgErr.Hint,
			Detail:   pgErr.Detail,
		}
	}
	return fmt.Errorf("query: execute: %w", err)
}
