package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// ExecuteRequest is the body of POST /api/v1/actions/:name/execute.
type ExecuteRequest struct {
	Input  map[string]any `json:"input"`
	UserID string         `json:"user_id,omitempty"`
}

// ExecuteResponse is returned once the execution reaches a terminal state.
type ExecuteResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// listActionsHandler handles GET /api/v1/actions.
func (s *Server) listActionsHandler(c *echo.Context) error {
	if s.deps.Registry == nil {
		return unavailable(c, "action registry")
	}
	return c.JSON(http.StatusOK, s.deps.Registry.All())
}

// executeActionHandler handles POST /api/v1/actions/:name/execute. Runs
// the full pipeline synchronously; the response carries the terminal
// execution id even on failure (the error body explains the outcome).
func (s *Server) executeActionHandler(c *echo.Context) error {
	if s.deps.Engine == nil {
		return unavailable(c, "execution engine")
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed execution request")
	}
	userID := req.UserID
	if userID == "" {
		userID = extractUserID(c)
	}

	executionID, err := s.deps.Engine.Execute(c.Request().Context(), c.Param("name"), req.Input, userID)
	if err != nil {
		return renderError(c, err)
	}

	exec, err := s.deps.Engine.Status(executionID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, &ExecuteResponse{
		ExecutionID: executionID,
		Status:      string(exec.Status),
	})
}

// executionStatusHandler handles GET /api/v1/executions/:id.
func (s *Server) executionStatusHandler(c *echo.Context) error {
	if s.deps.Engine == nil {
		return unavailable(c, "execution engine")
	}
	exec, err := s.deps.Engine.Status(c.Param("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, exec)
}

// cancelExecutionHandler handles POST /api/v1/executions/:id/cancel.
func (s *Server) cancelExecutionHandler(c *echo.Context) error {
	if s.deps.Engine == nil {
		return unavailable(c, "execution engine")
	}
	if err := s.deps.Engine.Cancel(c.Request().Context(), c.Param("id"), extractUserID(c)); err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"execution_id": c.Param("id"),
		"status":       "cancellation_requested",
	})
}

// executionStatsHandler handles GET /api/v1/executions/stats.
func (s *Server) executionStatsHandler(c *echo.Context) error {
	if s.deps.Engine == nil {
		return unavailable(c, "execution engine")
	}
	topN := 5
	if raw := c.QueryParam("top"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			topN = n
		}
	}
	return c.JSON(http.StatusOK, s.deps.Engine.Stats(topN))
}
