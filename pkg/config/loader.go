package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
	"github.com/codeready-toolchain/relay/pkg/webhook"
)

// relayYAML represents the complete relay.yaml file structure. Every
// section is optional; missing sections keep their built-in or
// environment-derived defaults.
type relayYAML struct {
	Server      *serverYAML      `yaml:"server"`
	Webhooks    *webhooksYAML    `yaml:"webhooks"`
	Audit       *auditYAML       `yaml:"audit"`
	Retention   *retentionYAML   `yaml:"retention"`
	Adapters    *adaptersYAML    `yaml:"adapters"`
	Policies    []policyYAML     `yaml:"policies"`
	Permissions []permissionYAML `yaml:"permissions"`
}

type serverYAML struct {
	ListenAddr    string `yaml:"listen_addr,omitempty"`
	ShutdownGrace string `yaml:"shutdown_grace,omitempty"` // Parsed to time.Duration
}

// webhooksYAML mirrors webhook.Config with durations as strings so users
// can write "30s" instead of nanosecond integers.
type webhooksYAML struct {
	Workers         int     `yaml:"workers,omitempty"`
	QueueSize       int     `yaml:"queue_size,omitempty"`
	MaxRetries      int     `yaml:"max_retries,omitempty"`
	InitialBackoff  string  `yaml:"initial_backoff,omitempty"`
	Multiplier      float64 `yaml:"multiplier,omitempty"`
	MaxBackoff      string  `yaml:"max_backoff,omitempty"`
	ConnectTimeout  string  `yaml:"connect_timeout,omitempty"`
	ReadTimeout     string  `yaml:"read_timeout,omitempty"`
	TotalTimeout    string  `yaml:"total_timeout,omitempty"`
	MetricsInterval string  `yaml:"metrics_interval,omitempty"`
}

type auditYAML struct {
	BufferSize    int    `yaml:"buffer_size,omitempty"`
	FlushInterval string `yaml:"flush_interval,omitempty"`
	LogPath       string `yaml:"log_path,omitempty"`
}

type retentionYAML struct {
	NotificationTTL    string `yaml:"notification_ttl,omitempty"`
	DeliveryAttemptTTL string `yaml:"delivery_attempt_ttl,omitempty"`
	MetricTTL          string `yaml:"metric_ttl,omitempty"`
	Interval           string `yaml:"cleanup_interval,omitempty"`
}

type adaptersYAML struct {
	Chat *struct {
		Token          string `yaml:"token,omitempty"`
		DefaultChannel string `yaml:"default_channel,omitempty"`
	} `yaml:"chat"`
	Email *struct {
		Host     string `yaml:"host,omitempty"`
		Port     int    `yaml:"port,omitempty"`
		From     string `yaml:"from,omitempty"`
		Username string `yaml:"username,omitempty"`
		Password string `yaml:"password,omitempty"`
	} `yaml:"email"`
	Ticket            *httpAdapterYAML `yaml:"ticket"`
	Workflow          *httpAdapterYAML `yaml:"workflow"`
	Documentation     *httpAdapterYAML `yaml:"documentation"`
	Monitoring        *httpAdapterYAML `yaml:"monitoring"`
	SecurityScan      *httpAdapterYAML `yaml:"security_scan"`
	EscalationChannel string           `yaml:"escalation_channel,omitempty"`
}

type httpAdapterYAML struct {
	BaseURL string `yaml:"base_url,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Timeout string `yaml:"timeout,omitempty"` // Parsed to time.Duration
}

// policyYAML mirrors security.Policy with the TTL as a duration string.
type policyYAML struct {
	ActionName           string              `yaml:"action_name"`
	RequiredRole         string              `yaml:"required_role"`
	SecurityLevel        string              `yaml:"security_level"`
	MaxExecutionsPerHour int                 `yaml:"max_executions_per_hour"`
	ApprovalRequired     bool                `yaml:"approval_required"`
	ApprovalMode         string              `yaml:"approval_mode,omitempty"`
	ApprovalTTL          string              `yaml:"approval_ttl,omitempty"`
	AllowedHours         *security.HourRange `yaml:"allowed_hours,omitempty"`
	IPAllowlist          []string            `yaml:"ip_allowlist,omitempty"`
}

type permissionYAML struct {
	UserID       string     `yaml:"user_id"`
	Roles        []string   `yaml:"roles"`
	Clearance    string     `yaml:"clearance"`
	Restrictions []string   `yaml:"restrictions,omitempty"`
	ExpiresAt    *time.Time `yaml:"expires_at,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Resolve base configuration from environment variables
//  2. Load relay.yaml from configDir (optional)
//  3. Expand environment variables in the YAML
//  4. Overlay YAML sections onto the base configuration
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"policies", stats.Policies,
		"permissions", stats.Permissions,
		"live_adapters", stats.LiveAdapters)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(configDir string, getenv func(string) string) (*Config, error) {
	cfg, err := fromEnv(getenv)
	if err != nil {
		return nil, err
	}
	cfg.configDir = configDir

	raw, err := readRelayYAML(configDir)
	if err != nil {
		return nil, NewLoadError("relay.yaml", err)
	}
	if raw == nil {
		return cfg, nil
	}

	if err := applyYAML(cfg, raw); err != nil {
		return nil, NewLoadError("relay.yaml", err)
	}
	return cfg, nil
}

// fromEnv builds the base configuration from environment variables and
// built-in defaults.
func fromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	dbCfg, err := store.LoadConfigFromEnv(getenv)
	if err != nil {
		return nil, err
	}

	smtpPort := 0
	if raw := getenv("SMTP_PORT"); raw != "" {
		smtpPort, err = strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
	}

	return &Config{
		ListenAddr:    get("RELAY_LISTEN_ADDR", ":8080"),
		ShutdownGrace: 15 * time.Second,
		Database:      dbCfg,
		Webhooks:      webhook.DefaultConfig(),
		Audit:         audit.DefaultConfig(),
		Retention:     store.DefaultRetentionConfig(),
		AuditLogPath:  getenv("AUDIT_LOG_PATH"),
		Adapters: AdaptersConfig{
			Chat: adapters.ChatConfig{
				Token:          getenv("SLACK_BOT_TOKEN"),
				DefaultChannel: get("SLACK_DEFAULT_CHANNEL", "#relay"),
			},
			Email: adapters.EmailConfig{
				Host:     getenv("SMTP_HOST"),
				Port:     smtpPort,
				From:     getenv("SMTP_FROM"),
				Username: getenv("SMTP_USERNAME"),
				Password: getenv("SMTP_PASSWORD"),
			},
			Ticket:        httpFromEnv(getenv, "ticket", "TICKET_API_URL", "TICKET_API_TOKEN"),
			Workflow:      httpFromEnv(getenv, "workflow", "WORKFLOW_API_URL", "WORKFLOW_API_TOKEN"),
			Documentation: httpFromEnv(getenv, "documentation", "DOCS_API_URL", "DOCS_API_TOKEN"),
			Monitoring:    httpFromEnv(getenv, "monitoring", "MONITORING_API_URL", "MONITORING_API_TOKEN"),
			SecurityScan:  httpFromEnv(getenv, "security_scan", "SECURITY_SCAN_API_URL", "SECURITY_SCAN_API_TOKEN"),
		},
	}, nil
}

func httpFromEnv(getenv func(string) string, name, urlKey, tokenKey string) adapters.HTTPConfig {
	return adapters.HTTPConfig{
		Name:    name,
		BaseURL: getenv(urlKey),
		Token:   getenv(tokenKey),
	}
}

// readRelayYAML loads and parses relay.yaml. A missing file is not an
// error; the daemon runs on environment configuration alone.
func readRelayYAML(configDir string) (*relayYAML, error) {
	path := filepath.Join(configDir, "relay.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No relay.yaml found, using environment configuration", "path", path)
			return nil, nil
		}
		return nil, err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// ExpandEnv passes through original data on parse/execution errors,
	// letting the YAML parser produce the clearer error message.
	data = ExpandEnv(data)

	var raw relayYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &raw, nil
}

// applyYAML overlays the parsed relay.yaml onto the base configuration.
// Zero-valued YAML fields leave the base values untouched.
func applyYAML(cfg *Config, raw *relayYAML) error {
	if raw.Server != nil {
		if raw.Server.ListenAddr != "" {
			cfg.ListenAddr = raw.Server.ListenAddr
		}
		cfg.ShutdownGrace = parseDuration("server.shutdown_grace", raw.Server.ShutdownGrace, cfg.ShutdownGrace)
	}

	if raw.Webhooks != nil {
		overlay := webhook.Config{
			Workers:         raw.Webhooks.Workers,
			QueueSize:       raw.Webhooks.QueueSize,
			MaxRetries:      raw.Webhooks.MaxRetries,
			Multiplier:      raw.Webhooks.Multiplier,
			InitialBackoff:  parseDuration("webhooks.initial_backoff", raw.Webhooks.InitialBackoff, 0),
			MaxBackoff:      parseDuration("webhooks.max_backoff", raw.Webhooks.MaxBackoff, 0),
			ConnectTimeout:  parseDuration("webhooks.connect_timeout", raw.Webhooks.ConnectTimeout, 0),
			ReadTimeout:     parseDuration("webhooks.read_timeout", raw.Webhooks.ReadTimeout, 0),
			TotalTimeout:    parseDuration("webhooks.total_timeout", raw.Webhooks.TotalTimeout, 0),
			MetricsInterval: parseDuration("webhooks.metrics_interval", raw.Webhooks.MetricsInterval, 0),
		}
		// Non-zero overlay values override the defaults; unset fields
		// keep them.
		if err := mergo.Merge(&cfg.Webhooks, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge webhook config: %w", err)
		}
	}

	if raw.Audit != nil {
		if raw.Audit.BufferSize > 0 {
			cfg.Audit.BufferSize = raw.Audit.BufferSize
		}
		cfg.Audit.FlushInterval = parseDuration("audit.flush_interval", raw.Audit.FlushInterval, cfg.Audit.FlushInterval)
		if raw.Audit.LogPath != "" {
			cfg.AuditLogPath = raw.Audit.LogPath
		}
	}

	if raw.Retention != nil {
		overlay := store.RetentionConfig{
			NotificationTTL:    parseDuration("retention.notification_ttl", raw.Retention.NotificationTTL, 0),
			DeliveryAttemptTTL: parseDuration("retention.delivery_attempt_ttl", raw.Retention.DeliveryAttemptTTL, 0),
			MetricTTL:          parseDuration("retention.metric_ttl", raw.Retention.MetricTTL, 0),
			Interval:           parseDuration("retention.cleanup_interval", raw.Retention.Interval, 0),
		}
		if err := mergo.Merge(&cfg.Retention, overlay, mergo.WithOverride); err != nil {
			return fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	if raw.Adapters != nil {
		applyAdaptersYAML(&cfg.Adapters, raw.Adapters)
	}

	for _, p := range raw.Policies {
		cfg.Policies = append(cfg.Policies, security.Policy{
			ActionName:           p.ActionName,
			RequiredRole:         p.RequiredRole,
			SecurityLevel:        security.Level(p.SecurityLevel),
			MaxExecutionsPerHour: p.MaxExecutionsPerHour,
			ApprovalRequired:     p.ApprovalRequired,
			ApprovalMode:         security.ApprovalMode(p.ApprovalMode),
			ApprovalTTL:          parseDuration("policy.approval_ttl", p.ApprovalTTL, 0),
			AllowedHours:         p.AllowedHours,
			IPAllowlist:          p.IPAllowlist,
		})
	}

	for _, p := range raw.Permissions {
		cfg.Permissions = append(cfg.Permissions, security.Permission{
			UserID:       p.UserID,
			Roles:        p.Roles,
			Clearance:    security.Level(p.Clearance),
			Restrictions: p.Restrictions,
			ExpiresAt:    p.ExpiresAt,
		})
	}

	return nil
}

func applyAdaptersYAML(cfg *AdaptersConfig, raw *adaptersYAML) {
	if raw.Chat != nil {
		if raw.Chat.Token != "" {
			cfg.Chat.Token = raw.Chat.Token
		}
		if raw.Chat.DefaultChannel != "" {
			cfg.Chat.DefaultChannel = raw.Chat.DefaultChannel
		}
	}
	if raw.Email != nil {
		if raw.Email.Host != "" {
			cfg.Email.Host = raw.Email.Host
		}
		if raw.Email.Port > 0 {
			cfg.Email.Port = raw.Email.Port
		}
		if raw.Email.From != "" {
			cfg.Email.From = raw.Email.From
		}
		if raw.Email.Username != "" {
			cfg.Email.Username = raw.Email.Username
		}
		if raw.Email.Password != "" {
			cfg.Email.Password = raw.Email.Password
		}
	}
	applyHTTPYAML(&cfg.Ticket, raw.Ticket)
	applyHTTPYAML(&cfg.Workflow, raw.Workflow)
	applyHTTPYAML(&cfg.Documentation, raw.Documentation)
	applyHTTPYAML(&cfg.Monitoring, raw.Monitoring)
	applyHTTPYAML(&cfg.SecurityScan, raw.SecurityScan)
	if raw.EscalationChannel != "" {
		cfg.EscalationChannel = raw.EscalationChannel
	}
}

func applyHTTPYAML(cfg *adapters.HTTPConfig, raw *httpAdapterYAML) {
	if raw == nil {
		return
	}
	if raw.BaseURL != "" {
		cfg.BaseURL = raw.BaseURL
	}
	if raw.Token != "" {
		cfg.Token = raw.Token
	}
	cfg.Timeout = parseDuration("adapter.timeout", raw.Timeout, cfg.Timeout)
}

// parseDuration parses a duration string, keeping def when the field is
// empty or malformed. Malformed values are logged rather than fatal so a
// typo in one knob does not take the daemon down.
func parseDuration(field, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in config, using default",
			"field", field,
			"value", raw,
			"default", def,
			"error", err)
		return def
	}
	return d
}
