package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/relay/pkg/security"
)

func envFromMap(env map[string]string) func(string) string {
	return func(key string) string { return env[key] }
}

func writeRelayYAML(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relay.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoadEnvironmentOnly(t *testing.T) {
	cfg, err := load(t.TempDir(), envFromMap(map[string]string{
		"RELAY_LISTEN_ADDR": ":9090",
		"DB_HOST":           "db.internal",
		"DB_PASSWORD":       "hunter2",
		"SLACK_BOT_TOKEN":   "xoxb-1",
		"TICKET_API_URL":    "https://tickets.example.com/api",
		"TICKET_API_TOKEN":  "tok-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "xoxb-1", cfg.Adapters.Chat.Token)
	assert.Equal(t, "#relay", cfg.Adapters.Chat.DefaultChannel)
	assert.Equal(t, "https://tickets.example.com/api", cfg.Adapters.Ticket.BaseURL)

	// Built-in defaults survive when no relay.yaml is present.
	assert.Equal(t, 4, cfg.Webhooks.Workers)
	assert.Equal(t, 5, cfg.Webhooks.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Retention.NotificationTTL)
	assert.Empty(t, cfg.Policies)
}

func TestLoadRelayYAMLOverlay(t *testing.T) {
	dir := writeRelayYAML(t, `
server:
  listen_addr: ":8443"
  shutdown_grace: 30s
webhooks:
  workers: 8
  max_retries: 3
  initial_backoff: 2s
audit:
  buffer_size: 4096
  log_path: /var/log/relay/audit.log
retention:
  notification_ttl: 48h
adapters:
  chat:
    default_channel: "#incidents"
  workflow:
    base_url: https://workflows.example.com/api
    token: "{{.WORKFLOW_API_TOKEN}}"
    timeout: 45s
policies:
  - action_name: restart_service
    required_role: operator
    security_level: elevated
    max_executions_per_hour: 10
    approval_required: true
    approval_mode: majority
    approval_ttl: 1h
    allowed_hours:
      start: 8
      end: 18
permissions:
  - user_id: alice
    roles: [operator, approver]
    clearance: admin
`)
	t.Setenv("WORKFLOW_API_TOKEN", "wf-secret")

	cfg, err := load(dir, envFromMap(map[string]string{
		"SLACK_BOT_TOKEN": "xoxb-env",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8443", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)

	// YAML overrides only the fields it names.
	assert.Equal(t, 8, cfg.Webhooks.Workers)
	assert.Equal(t, 3, cfg.Webhooks.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Webhooks.InitialBackoff)
	assert.Equal(t, 256, cfg.Webhooks.QueueSize)
	assert.Equal(t, 300*time.Second, cfg.Webhooks.MaxBackoff)

	assert.Equal(t, 4096, cfg.Audit.BufferSize)
	assert.Equal(t, "/var/log/relay/audit.log", cfg.AuditLogPath)
	assert.Equal(t, 48*time.Hour, cfg.Retention.NotificationTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.DeliveryAttemptTTL)

	// Env-derived adapter settings survive unless the YAML overrides them.
	assert.Equal(t, "xoxb-env", cfg.Adapters.Chat.Token)
	assert.Equal(t, "#incidents", cfg.Adapters.Chat.DefaultChannel)
	assert.Equal(t, "https://workflows.example.com/api", cfg.Adapters.Workflow.BaseURL)
	assert.Equal(t, "wf-secret", cfg.Adapters.Workflow.Token)
	assert.Equal(t, 45*time.Second, cfg.Adapters.Workflow.Timeout)

	require.Len(t, cfg.Policies, 1)
	policy := cfg.Policies[0]
	assert.Equal(t, "restart_service", policy.ActionName)
	assert.Equal(t, security.LevelElevated, policy.SecurityLevel)
	assert.Equal(t, security.ApprovalMajority, policy.ApprovalMode)
	assert.Equal(t, time.Hour, policy.ApprovalTTL)
	require.NotNil(t, policy.AllowedHours)
	assert.True(t, policy.AllowedHours.Contains(9))
	assert.False(t, policy.AllowedHours.Contains(19))

	require.Len(t, cfg.Permissions, 1)
	assert.Equal(t, "alice", cfg.Permissions[0].UserID)
	assert.Equal(t, security.LevelAdmin, cfg.Permissions[0].Clearance)
	assert.True(t, cfg.Permissions[0].HasRole("approver"))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := writeRelayYAML(t, "server:\n  listen_addr: [unclosed")

	_, err := load(dir, envFromMap(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "relay.yaml", loadErr.File)
}

func TestInitializeRejectsInvalidPolicy(t *testing.T) {
	dir := writeRelayYAML(t, `
policies:
  - action_name: restart_service
    security_level: cosmic
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security_level")
}

func TestParseDurationFallsBackOnGarbage(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("f", "", 5*time.Second))
	assert.Equal(t, 5*time.Second, parseDuration("f", "soon", 5*time.Second))
	assert.Equal(t, 90*time.Second, parseDuration("f", "90s", 5*time.Second))
}

func TestStatsCountsLiveAdapters(t *testing.T) {
	cfg, err := load(t.TempDir(), envFromMap(map[string]string{
		"SLACK_BOT_TOKEN":    "xoxb-1",
		"SMTP_HOST":          "smtp.example.com",
		"MONITORING_API_URL": "https://metrics.example.com",
	}))
	require.NoError(t, err)

	stats := cfg.Stats()
	assert.Equal(t, 3, stats.LiveAdapters)
	assert.Zero(t, stats.Policies)
}

func TestLoadRejectsBadEnvNumbers(t *testing.T) {
	_, err := load(t.TempDir(), envFromMap(map[string]string{"SMTP_PORT": "not-a-port"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP_PORT")

	_, err = load(t.TempDir(), envFromMap(map[string]string{"DB_PORT": "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}
