package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// NotificationResponse is returned by POST /api/v1/notifications.
type NotificationResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Handled []string `json:"handled,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

// submitNotificationHandler handles POST /api/v1/notifications, the
// durable delivery path for executor lifecycle events.
func (s *Server) submitNotificationHandler(c *echo.Context) error {
	if s.deps.Notifications == nil {
		return unavailable(c, "notification protocol")
	}

	var n schema.Notification
	if err := c.Bind(&n); err != nil {
		return badRequest(c, "malformed notification payload")
	}

	result, err := s.deps.Notifications.Accept(c.Request().Context(), &n)
	if err != nil {
		return renderError(c, err)
	}

	return c.JSON(http.StatusOK, &NotificationResponse{
		ID:      n.ID,
		Status:  string(result.Status),
		Handled: result.Handled,
		Failed:  result.Failed,
	})
}
