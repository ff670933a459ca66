package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lattice-host/lattice-gateway/internal/auth"
	"github.com/lattice-host/lattice-gateway/internal/events"
	"github.com/lattice-host/lattice-gateway/internal/firewall"
	"github.com/lattice-host/lattice-gateway/internal/metrics"
	"github.com/lattice-host/lattice-gateway/internal/query"
	"github.com/lattice-host/lattice-gateway/internal/sqlident"
	"github.com/lattice-host/lattice-gateway/internal/tenant"
)

type queryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
	// ProjectID accepts both a JSON number and a string.
	ProjectID any `json:"projectId"`
}

type queryResponse struct {
	Success       bool             `json:"success"`
	Rows          []map[string]any `json:"rows"`
	RowCount      int              `json:"rowCount"`
	Fields        []query.Field    `json:"fields"`
	Command       string           `json:"command"`
	ExecutionTime int64            `json:"executionTime"`
}

// handleQuery is the raw SQL endpoint. The full pipeline runs in
// order: credential verification, tenant resolution, rate limiting,
// SQL firewall, search-path binding and execution, then fire-and-forget
// mutation notification. Firewall and authorization failures never
// reach the database.
func (s *Server) handleQuery(c echo.Context) error {
	caller, ok := s.authenticate(c)
	if !ok {
		return nil
	}

	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	if strings.TrimSpace(req.SQL) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingField",
			"message": "sql is required",
		})
	}

	ctx := c.Request().Context()

	projectID, resolved := s.resolveTenant(c, caller, req.ProjectID)
	if !resolved {
		return nil
	}

	// Rate limiting is per tenant; only unbound admin requests skip it.
	if projectID > 0 {
		res := s.limiter.Check(projectID)
		setRateHeaders(c, res)
		if !res.Allowed {
			metrics.RecordRateLimitBlock()
			return c.JSON(http.StatusTooManyRequests, map[string]string{
				"error":  "RateLimited",
				"reason": res.Reason,
			})
		}
	}

	if v := s.inspect(caller, req.SQL, projectID); v != nil {
		metrics.RecordFirewallRejection(v.Category)
		return c.JSON(http.StatusForbidden, map[string]string{
			"error":    "FirewallRejected",
			"category": v.Category,
			"message":  v.Hint,
		})
	}

	result, err := s.executor.Execute(ctx, req.SQL, req.Params, projectID)
	if err != nil {
		command, _ := query.Classify(req.SQL)
		metrics.RecordQuery(command, false, 0)
		return s.writeQueryError(c, err)
	}
	metrics.RecordQuery(result.Command, true, float64(result.ExecutionTimeMs)/1000)

	if result.IsMutation && projectID > 0 {
		s.notifier.NotifyMutation(req.SQL, projectID, result.Rows)
		s.recordCreatedTable(req.SQL, result.Command, projectID, caller)
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

// resolveTenant applies the tenant-binding rules and writes the error
// response itself on failure. Admin callers may proceed unbound (no
// tenant, no search-path pinning); everyone else must end up with a
// project.
func (s *Server) resolveTenant(c echo.Context, caller auth.Result, bodyProjectID any) (int, bool) {
	explicit := coerceProjectID(bodyProjectID, c.QueryParam("projectId"))

	projectID, err := s.resolver.Resolve(c.Request().Context(), caller, explicit)
	switch {
	case err == nil:
		return projectID, true
	case errors.Is(err, tenant.ErrMissingTenant) && caller.IsAdmin:
		return 0, true
	case errors.Is(err, tenant.ErrMissingTenant):
		_ = c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingTenant",
			"message": "projectId is required for session-authenticated requests",
		})
		return 0, false
	case errors.Is(err, tenant.ErrAccessDenied):
		_ = c.JSON(http.StatusForbidden, map[string]string{
			"error":   "AccessDenied",
			"message": "You are not a member of this project",
		})
		return 0, false
	default:
		log.Printf("Error resolving tenant: %v", err)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to resolve project",
		})
		return 0, false
	}
}

// inspect runs the firewall. Admin callers skip the schema-escape
// check (the admin console legitimately reaches across schemas) but
// destructive statements and system-table DDL stay blocked for
// everyone.
func (s *Server) inspect(caller auth.Result, sql string, projectID int) *firewall.Violation {
	if caller.IsAdmin {
		return firewall.InspectPrivileged(sql)
	}
	var allowed []string
	if projectID > 0 {
		allowed = []string{sqlident.SchemaName(projectID)}
	}
	return firewall.Inspect(sql, allowed)
}

// writeQueryError shapes execution failures. Engine diagnostics pass
// through to the caller; infrastructure failures do not.
func (s *Server) writeQueryError(c echo.Context, err error) error {
	var engineErr *query.EngineError
	if errors.As(err, &engineErr) {
		resp := map[string]any{"error": engineErr.Message}
		if engineErr.Position > 0 {
			resp["position"] = engineErr.Position
		}
		if engineErr.Hint != "" {
			resp["hint"] = engineErr.Hint
		}
		if engineErr.Detail != "" {
			resp["detail"] = engineErr.Detail
		}
		return c.JSON(http.StatusBadRequest, resp)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "QueryFailed",
			"message": "statement exceeded the execution time limit",
		})
	}

	log.Printf("Error executing query: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "InternalError",
		"message": "Query execution failed",
	})
}

// recordCreatedTable best-effort registers new tables to their owning
// project. Failures are logged and never affect the response.
func (s *Server) recordCreatedTable(sql, command string, projectID int, caller auth.Result) {
	if command != "CREATE" {
		return
	}
	table, ok := events.ExtractCreatedTable(sql)
	if !ok {
		return
	}
	creator := caller.Email
	if creator == "" {
		creator = caller.Method
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.registry.Record(ctx, table, projectID, creator); err != nil {
			log.Printf("Warning: failed to register table %q: %v", table, err)
		}
	}()
}

// coerceProjectID normalizes the projectId field, which clients send
// as a JSON number, a string, or a query parameter.
func coerceProjectID(v any, fallback string) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case float64:
		return strconv.Itoa(int(t))
	case int:
		return strconv.Itoa(t)
	}
	return fallback
}
