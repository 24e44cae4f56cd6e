// Package api exposes the messaging substrate over HTTP and WebSocket:
// task dispatch, notifications, webhook management, action execution,
// the agent end-task lifecycle, schema discovery, and audit queries.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/endtask"
	"github.com/codeready-toolchain/relay/pkg/engine"
	"github.com/codeready-toolchain/relay/pkg/notify"
	"github.com/codeready-toolchain/relay/pkg/registry"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/webhook"
)

// APIVersion is stamped on every response via the X-API-Version header.
const APIVersion = "v1"

// Deps carries the component handles the server routes requests to.
// Optional components may be nil; the corresponding endpoints return 503.
type Deps struct {
	Engine        *engine.Engine
	Registry      *registry.Registry
	Notifications *notify.Service
	Hub           *notify.Hub
	Webhooks      *webhook.Manager
	EndTask       *endtask.Manager
	Security      *security.Manager
	Audit         *audit.Logger
	// HealthCheck pings the event store.
	HealthCheck func(ctx context.Context) error
	// MetricsGatherer backs GET /metrics. Nil disables the endpoint.
	MetricsGatherer prometheus.Gatherer
}

// Server is the HTTP edge of the substrate.
type Server struct {
	deps  Deps
	tasks *TaskTracker

	echo       *echo.Echo
	httpServer *http.Server
}

// NewServer wires the routes and the task status tracker.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:  deps,
		tasks: NewTaskTracker(),
	}
	if deps.Notifications != nil {
		s.tasks.Attach(deps.Notifications)
	}
	s.echo = s.buildRouter()
	return s
}

// Handler returns the routed handler, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) buildRouter() *echo.Echo {
	e := echo.New()
	e.Use(requestMetadata())
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)
	if s.deps.MetricsGatherer != nil {
		e.GET("/metrics", s.metricsHandler)
	}
	e.GET("/ws", s.wsHandler)

	v1 := e.Group("/api/v1")
	v1.POST("/tasks", s.dispatchTaskHandler)
	v1.POST("/tasks/batch", s.dispatchBatchHandler)
	v1.GET("/tasks/:id/status", s.taskStatusHandler)

	v1.POST("/notifications", s.submitNotificationHandler)

	v1.POST("/webhooks", s.registerWebhookHandler)
	v1.DELETE("/webhooks/:id", s.deleteWebhookHandler)
	v1.GET("/webhooks/:id/stats", s.webhookStatsHandler)

	v1.POST("/approvals", s.requestApprovalHandler)
	v1.POST("/approvals/:id/grant", s.grantApprovalHandler)
	v1.POST("/approvals/:id/reject", s.rejectApprovalHandler)

	v1.POST("/agent/end-task", s.endTaskHandler)

	v1.GET("/schemas", s.listSchemasHandler)
	v1.GET("/schemas/:type", s.getSchemaHandler)

	v1.GET("/actions", s.listActionsHandler)
	v1.POST("/actions/:name/execute", s.executeActionHandler)
	v1.GET("/executions/:id", s.executionStatusHandler)
	v1.POST("/executions/:id/cancel", s.cancelExecutionHandler)
	v1.GET("/executions/stats", s.executionStatsHandler)

	v1.GET("/audit/events", s.auditQueryHandler)
	v1.GET("/audit/export", s.auditExportHandler)

	return e
}

// Start serves HTTP on addr. Blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) metricsHandler(c *echo.Context) error {
	promhttp.HandlerFor(s.deps.MetricsGatherer, promhttp.HandlerOpts{}).
		ServeHTTP(c.Response(), c.Request())
	return nil
}
