package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// endTaskHandler handles POST /api/v1/agent/end-task.
func (s *Server) endTaskHandler(c *echo.Context) error {
	if s.deps.EndTask == nil {
		return unavailable(c, "end-task manager")
	}

	var event schema.AgentEndTask
	if err := c.Bind(&event); err != nil {
		return badRequest(c, "malformed end-task payload")
	}

	report, err := s.deps.EndTask.EndTask(c.Request().Context(), &event)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
