package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lattice-host/lattice-gateway/internal/auth"
	"github.com/lattice-host/lattice-gateway/internal/metrics"
	"github.com/lattice-host/lattice-gateway/internal/query"
	"github.com/lattice-host/lattice-gateway/internal/rows"
	"github.com/lattice-host/lattice-gateway/internal/sqlident"
)

type rowsRequest struct {
	Table     string         `json:"table"`
	Schema    string         `json:"schema"`
	Data      map[string]any `json:"data"`
	Where     map[string]any `json:"where"`
	ProjectID any            `json:"projectId"`
}

// rowsContext is the resolved pipeline state shared by all four CRUD
// handlers: verified caller, bound tenant, and target schema/table.
type rowsContext struct {
	caller    auth.Result
	projectID int
	schema    string
	table     string
}

// prepareRows runs the shared verifier → resolver → rate limiter
// pipeline and resolves the target schema and table. It writes the
// error response itself and returns false when the request must stop.
func (s *Server) prepareRows(c echo.Context, table, schema string, bodyProjectID any) (rowsContext, bool) {
	caller, ok := s.authenticate(c)
	if !ok {
		return rowsContext{}, false
	}

	table = sqlident.Sanitize(table)
	if table == "" {
		_ = c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingField",
			"message": "table is required",
		})
		return rowsContext{}, false
	}

	projectID, resolved := s.resolveTenant(c, caller, bodyProjectID)
	if !resolved {
		return rowsContext{}, false
	}

	if projectID > 0 {
		res := s.limiter.Check(projectID)
		setRateHeaders(c, res)
		if !res.Allowed {
			metrics.RecordRateLimitBlock()
			_ = c.JSON(http.StatusTooManyRequests, map[string]string{
				"error":  "RateLimited",
				"reason": res.Reason,
			})
			return rowsContext{}, false
		}
	}

	resolvedSchema, ok := s.resolveSchema(c, caller, projectID, schema)
	if !ok {
		return rowsContext{}, false
	}

	return rowsContext{
		caller:    caller,
		projectID: projectID,
		schema:    resolvedSchema,
		table:     table,
	}, true
}

// resolveSchema picks the schema a CRUD request operates in. The
// default is the tenant's own schema; explicit schemas are restricted
// to the caller's own tenant schema or the shared public schema,
// except for admins.
func (s *Server) resolveSchema(c echo.Context, caller auth.Result, projectID int, explicit string) (string, bool) {
	if explicit == "" {
		if projectID > 0 {
			return sqlident.SchemaName(projectID), true
		}
		return "public", true
	}

	schema := sqlident.Sanitize(explicit)
	if caller.IsAdmin {
		return schema, true
	}

	if sqlident.IsTenantSchema(schema) {
		if projectID > 0 && schema == sqlident.SchemaName(projectID) {
			return schema, true
		}
		_ = c.JSON(http.StatusForbidden, map[string]string{
			"error":   "AccessDenied",
			"message": "schema " + schema + " does not belong to your project",
		})
		return "", false
	}

	if schema == "public" || schema == "information_schema" {
		return schema, true
	}

	_ = c.JSON(http.StatusForbidden, map[string]string{
		"error":   "AccessDenied",
		"message": "schema " + schema + " is outside your allowed set",
	})
	return "", false
}

// handleRowsRead is the structured read endpoint.
// GET /v1/rows?table=...&schema=...&limit=...&offset=...&orderBy=...&orderDir=...
func (s *Server) handleRowsRead(c echo.Context) error {
	rc, ok := s.prepareRows(c, c.QueryParam("table"), c.QueryParam("schema"), nil)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()

	exists, err := s.inspector.TableExists(ctx, rc.schema, rc.table)
	if err != nil {
		log.Printf("Error checking table %s.%s: %v", rc.schema, rc.table, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to inspect table",
		})
	}
	if !exists {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error":   "NotFound",
			"message": "Table not found: " + rc.table,
		})
	}

	filterProject, ok := s.ownershipFilter(c, rc)
	if !ok {
		return nil
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	sql, params, err := rows.BuildSelect(rows.ReadParams{
		Schema:        rc.schema,
		Table:         rc.table,
		Limit:         limit,
		Offset:        offset,
		OrderBy:       c.QueryParam("orderBy"),
		OrderDir:      c.QueryParam("orderDir"),
		FilterProject: filterProject,
	})
	if err != nil {
		return s.writeRowsBuildError(c, err)
	}

	result, err := s.executor.Execute(ctx, sql, params, rc.projectID)
	if err != nil {
		return s.writeQueryError(c, err)
	}
	metrics.RecordQuery(result.Command, true, float64(result.ExecutionTimeMs)/1000)

	return c.JSON(http.StatusOK, queryResponse{
		Success:       true,
		Rows:          result.Rows,
		RowCount:      result.RowCount,
		Fields:        result.Fields,
		Command:       result.Command,
		ExecutionTime: result.ExecutionTimeMs,
	})
}

// ownershipFilter decides row filtering for reads in the shared public
// schema. Tables with the conventional ownership column are filtered
// by tenant. For registry-known tables the owning project is enforced.
// Tables with no ownership information at all are served unfiltered
// only when legacy mode is enabled; otherwise access is denied.
func (s *Server) ownershipFilter(c echo.Context, rc rowsContext) (int, bool) {
	// Tenant schemas are isolated by construction; admins see all.
	if rc.schema != "public" || rc.caller.IsAdmin {
		return 0, true
	}

	ctx := c.Request().Context()

	hasOwner, err := s.inspector.HasOwnerColumn(ctx, rc.schema, rc.table)
	if err != nil {
		log.Printf("Error inspecting columns of %s.%s: %v", rc.schema, rc.table, err)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to inspect table",
		})
		return 0, false
	}
	if hasOwner {
		return rc.projectID, true
	}

	owner, known, err := s.registry.Lookup(ctx, rc.table)
	if err != nil {
		log.Printf("Error looking up table ownership for %q: %v", rc.table, err)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to resolve table ownership",
		})
		return 0, false
	}
	if known {
		if owner != rc.projectID {
			_ = c.JSON(http.StatusForbidden, map[string]string{
				"error":   "AccessDenied",
				"message": "Table " + rc.table + " belongs to another project",
			})
			return 0, false
		}
		return 0, true
	}

	if s.cfg.LegacyUnscopedReads {
		return 0, true
	}
	_ = c.JSON(http.StatusForbidden, map[string]string{
		"error":   "AccessDenied",
		"message": "Table " + rc.table + " has no ownership information",
	})
	return 0, false
}

// handleRowsInsert builds and runs a parameterized INSERT.
// POST /v1/rows with {table, schema?, data, projectId?}
func (s *Server) handleRowsInsert(c echo.Context) error {
	var req rowsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	rc, ok := s.prepareRows(c, req.Table, req.Schema, req.ProjectID)
	if !ok {
		return nil
	}

	sql, params, err := rows.BuildInsert(rc.schema, rc.table, req.Data)
	if err != nil {
		return s.writeRowsBuildError(c, err)
	}

	return s.runMutation(c, rc, sql, params)
}

// handleRowsUpdate builds and runs a parameterized UPDATE. The where
// map must be non-empty.
// PUT /v1/rows with {table, schema?, data, where, projectId?}
func (s *Server) handleRowsUpdate(c echo.Context) error {
	var req rowsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	rc, ok := s.prepareRows(c, req.Table, req.Schema, req.ProjectID)
	if !ok {
		return nil
	}

	sql, params, err := rows.BuildUpdate(rc.schema, rc.table, req.Data, req.Where)
	if err != nil {
		return s.writeRowsBuildError(c, err)
	}

	return s.runMutation(c, rc, sql, params)
}

// handleRowsDelete builds and runs a parameterized DELETE. The where
// map must be non-empty.
// DELETE /v1/rows with {table, schema?, where, projectId?}
func (s *Server) handleRowsDelete(c echo.Context) error {
	var req rowsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	rc, ok := s.prepareRows(c, req.Table, req.Schema, req.ProjectID)
	if !ok {
		return nil
	}

	sql, params, err := rows.BuildDelete(rc.schema, rc.table, req.Where)
	if err != nil {
		return s.writeRowsBuildError(c, err)
	}

	return s.runMutation(c, rc, sql, params)
}

// runMutation executes generated mutation SQL and fires the event
// notifier on success.
func (s *Server) runMutation(c echo.Context, rc rowsContext, sql string, params []any) error {
	result, err := s.executor.Execute(c.Request().Context(), sql, params, rc.projectID)
	if err != nil {
		command, _ := query.Classify(sql)
		metrics.RecordQuery(command, false, 0)
		return s.writeQueryError(c, err)
	}
	metrics.RecordQuery(result.Command, true, float64(result.ExecutionTimeMs)/1000)

	if rc.projectID > 0 {
		s.notifier.NotifyMutation(sql, rc.projectID, result.Rows)
	}

	return c.JSON(http.StatusOK, queryResponse{
		Success:       true,
		Rows:          result.Rows,
		RowCount:      result.RowCount,
		Fields:        result.Fields,
		Command:       result.Command,
		ExecutionTime: result.ExecutionTimeMs,
	})
}

// writeRowsBuildError maps builder failures to request errors.
func (s *Server) writeRowsBuildError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, rows.ErrNoTable), errors.Is(err, rows.ErrNoData), errors.Is(err, rows.ErrEmptyWhere):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingField",
			"message": err.Error(),
		})
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": err.Error(),
		})
	}
}
