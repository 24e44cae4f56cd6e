package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck is one component's health probe result.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}

// healthHandler handles GET /health. Only the substrate's own components
// are probed; adapter targets are external and excluded so an unhealthy
// downstream does not flap this process.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.deps.HealthCheck != nil {
		if err := s.deps.HealthCheck(reqCtx); err != nil {
			status = healthStatusUnhealthy
			checks["store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["store"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.deps.Webhooks != nil {
		depth := s.deps.Webhooks.QueueDepth()
		check := HealthCheck{Status: healthStatusHealthy}
		if depth > 0 {
			check.Message = "queued deliveries: " + strconv.Itoa(depth)
		}
		checks["webhook_queue"] = check
	}

	if s.deps.Hub != nil {
		checks["websocket"] = HealthCheck{Status: healthStatusHealthy,
			Message: "connections: " + strconv.Itoa(s.deps.Hub.ActiveConnections())}
	}

	if s.deps.Audit != nil {
		check := HealthCheck{Status: healthStatusHealthy}
		if buffered := s.deps.Audit.Buffered(); buffered > 0 {
			check.Message = "buffered events: " + strconv.Itoa(buffered)
		}
		checks["audit"] = check
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{Status: status, Checks: checks})
}

