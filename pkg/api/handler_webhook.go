package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/schema"
)

// WebhookResponse is returned by POST /api/v1/webhooks.
type WebhookResponse struct {
	WebhookID  string   `json:"webhook_id"`
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
	Active     bool     `json:"active"`
}

// registerWebhookRequest is the wire form of a registration. Active is a
// pointer so an omitted field is distinguishable from an explicit false; a
// registration is active unless the client says otherwise.
type registerWebhookRequest struct {
	URL        string   `json:"url"`
	Secret     string   `json:"secret,omitempty"`
	EventTypes []string `json:"event_types"`
	Active     *bool    `json:"active"`
}

// registerWebhookHandler handles POST /api/v1/webhooks.
func (s *Server) registerWebhookHandler(c *echo.Context) error {
	if s.deps.Webhooks == nil {
		return unavailable(c, "webhook manager")
	}

	var req registerWebhookRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed webhook registration")
	}

	reg := schema.WebhookRegistration{
		URL:        req.URL,
		Secret:     req.Secret,
		EventTypes: req.EventTypes,
		Active:     req.Active == nil || *req.Active,
	}

	rec, err := s.deps.Webhooks.Register(c.Request().Context(), &reg)
	if err != nil {
		return renderError(c, err)
	}

	return c.JSON(http.StatusCreated, &WebhookResponse{
		WebhookID:  rec.WebhookID,
		URL:        rec.URL,
		EventTypes: rec.EventTypes,
		Active:     rec.Active,
	})
}

// deleteWebhookHandler handles DELETE /api/v1/webhooks/:id.
func (s *Server) deleteWebhookHandler(c *echo.Context) error {
	if s.deps.Webhooks == nil {
		return unavailable(c, "webhook manager")
	}
	if err := s.deps.Webhooks.Unregister(c.Request().Context(), c.Param("id")); err != nil {
		return renderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// webhookStatsHandler handles GET /api/v1/webhooks/:id/stats.
func (s *Server) webhookStatsHandler(c *echo.Context) error {
	if s.deps.Webhooks == nil {
		return unavailable(c, "webhook manager")
	}
	stats, err := s.deps.Webhooks.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
