package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/store"
)

// auditQueryHandler handles GET /api/v1/audit/events.
func (s *Server) auditQueryHandler(c *echo.Context) error {
	if s.deps.Audit == nil {
		return unavailable(c, "audit logger")
	}

	filter, err := auditFilterFromQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if text := c.QueryParam("search"); text != "" {
		recs, err := s.deps.Audit.Search(c.Request().Context(), text, filter.Limit)
		if err != nil {
			return renderError(c, err)
		}
		return c.JSON(http.StatusOK, recs)
	}

	recs, err := s.deps.Audit.Query(c.Request().Context(), filter)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, recs)
}

// auditExportHandler handles GET /api/v1/audit/export?format=json|csv.
func (s *Server) auditExportHandler(c *echo.Context) error {
	if s.deps.Audit == nil {
		return unavailable(c, "audit logger")
	}

	filter, err := auditFilterFromQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	format := audit.ExportFormat(c.QueryParam("format"))
	if format == "" {
		format = audit.ExportJSON
	}

	data, err := s.deps.Audit.Export(c.Request().Context(), format, filter)
	if err != nil {
		return renderError(c, err)
	}

	contentType := "application/json"
	if format == audit.ExportCSV {
		contentType = "text/csv"
	}
	return c.Blob(http.StatusOK, contentType, data)
}

func auditFilterFromQuery(c *echo.Context) (store.AuditFilter, error) {
	filter := store.AuditFilter{
		EventType:   c.QueryParam("event_type"),
		Level:       store.AuditLevel(c.QueryParam("level")),
		MinLevel:    store.AuditLevel(c.QueryParam("min_level")),
		UserID:      c.QueryParam("user_id"),
		ActionName:  c.QueryParam("action_name"),
		ExecutionID: c.QueryParam("execution_id"),
	}
	if raw := c.QueryParam("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.Since = ts
	}
	if raw := c.QueryParam("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.Until = ts
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, err
		}
		filter.Limit = n
	}
	return filter, nil
}
