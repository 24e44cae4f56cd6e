// Relay daemon — the orchestrator/executor messaging substrate. Serves
// the HTTP and WebSocket API, runs webhook delivery workers, and owns the
// audit and retention background loops.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/api"
	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/config"
	"github.com/codeready-toolchain/relay/pkg/endtask"
	"github.com/codeready-toolchain/relay/pkg/engine"
	"github.com/codeready-toolchain/relay/pkg/notify"
	"github.com/codeready-toolchain/relay/pkg/registry"
	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
	"github.com/codeready-toolchain/relay/pkg/version"
	"github.com/codeready-toolchain/relay/pkg/webhook"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting relay",
		"version", version.Full(),
		"listen_addr", cfg.ListenAddr,
		"config_dir", *configDir)

	// 2. Open the event store (connect + migrate)
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to open event store", "error", err)
		os.Exit(2)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Error closing event store", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL event store")

	// 3. Retention loop (TTL cleanup + approval expiry)
	retention := store.NewRetentionService(cfg.Retention, st)
	retention.Start(ctx)
	defer retention.Stop()

	// 4. Audit logger: durable store sink, optional write-through file sink
	var fileSink audit.Sink
	if cfg.AuditLogPath != "" {
		fs, err := audit.NewFileSink(cfg.AuditLogPath)
		if err != nil {
			slog.Error("Failed to open audit log file", "path", cfg.AuditLogPath, "error", err)
			os.Exit(1)
		}
		fileSink = fs
	}
	auditor := audit.NewLogger(cfg.Audit, audit.NewStoreSink(st), fileSink, st)
	auditor.Start(ctx)

	// 5. Security manager seeded from configuration
	secMgr := security.NewManager(st, auditor)
	secMgr.LoadPolicies(cfg.Policies)
	secMgr.LoadPermissions(cfg.Permissions)

	// 6. Action registry and downstream adapters
	reg := registry.New()
	registry.RegisterBuiltins(reg)

	set := adapters.NewSet()
	chat := adapters.NewChat(cfg.Adapters.Chat)
	set.Register(chat)
	set.Register(adapters.NewEmail(cfg.Adapters.Email))
	set.Register(adapters.NewHTTP(cfg.Adapters.Ticket))
	set.Register(adapters.NewHTTP(cfg.Adapters.Workflow))
	set.Register(adapters.NewHTTP(cfg.Adapters.Documentation))
	set.Register(adapters.NewHTTP(cfg.Adapters.Monitoring))
	set.Register(adapters.NewHTTP(cfg.Adapters.SecurityScan))

	escalationChannel := cfg.Adapters.EscalationChannel
	if escalationChannel == "" {
		escalationChannel = cfg.Adapters.Chat.DefaultChannel
	}
	set.Register(adapters.NewEscalation(chat, escalationChannel))
	slog.Info("Adapters registered", "adapters", set.Names())

	// 7. Execution engine with Prometheus metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	eng := engine.New(reg, set, secMgr, auditor, engine.NewMetrics(promReg))

	// 8. Notification protocol + WebSocket hub. The two reference each
	// other, so the broadcaster is wired after construction.
	notifSvc := notify.NewService(st, nil)
	hub := notify.NewHub(notifSvc, 5*time.Second)
	notifSvc.SetBroadcaster(hub)

	// 9. Webhook delivery workers
	whMgr := webhook.NewManager(cfg.Webhooks, st)
	whMgr.Start(ctx)

	// 10. Agent end-task lifecycle
	etMgr := endtask.NewManager(st, notifSvc, whMgr)
	etMgr.RegisterCleanupHandler("default", func(ctx context.Context, action string, event *schema.AgentEndTask) error {
		slog.Info("Cleanup action acknowledged",
			"action", action,
			"task_id", event.TaskID,
			"agent_id", event.AgentID)
		return nil
	})

	// 11. HTTP server
	srv := api.NewServer(api.Deps{
		Engine:          eng,
		Registry:        reg,
		Notifications:   notifSvc,
		Hub:             hub,
		Webhooks:        whMgr,
		EndTask:         etMgr,
		Security:        secMgr,
		Audit:           auditor,
		HealthCheck:     st.Health,
		MetricsGatherer: promReg,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := srv.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Relay started successfully",
		"webhook_workers", cfg.Webhooks.Workers,
		"actions", len(reg.All()))

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	serverFailed := false
	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
		serverFailed = true
	}

	// 13. Graceful shutdown: stop ingress first, then drain the webhook
	// queue, then flush audit. The store closes last via defer.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	hub.Close()
	eng.CancelAll()
	whMgr.Stop(cfg.ShutdownGrace)

	flushCtx, flushCancel := context.WithTimeout(ctx, 5*time.Second)
	auditor.Flush(flushCtx)
	flushCancel()
	auditor.Stop()

	slog.Info("Shutdown complete")

	if serverFailed {
		// os.Exit skips the deferred cleanup, so release it explicitly.
		// Both calls are safe to repeat.
		retention.Stop()
		if err := st.Close(); err != nil {
			slog.Error("Error closing event store", "error", err)
		}
		os.Exit(3)
	}
}
