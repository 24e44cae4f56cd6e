// Package config assembles the runtime configuration for the relay
// daemon. Operational knobs (ports, pools, buffer sizes) come from
// environment variables; security policies, permission grants, and
// adapter endpoints live in an optional relay.yaml under the config
// directory. YAML values may reference environment variables with
// {{.VAR}} template syntax.
package config

import (
	"time"

	"github.com/codeready-toolchain/relay/pkg/adapters"
	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/security"
	"github.com/codeready-toolchain/relay/pkg/store"
	"github.com/codeready-toolchain/relay/pkg/webhook"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	configDir string

	// ListenAddr is the HTTP bind address, e.g. ":8080".
	ListenAddr string
	// ShutdownGrace bounds the drain phase on SIGTERM.
	ShutdownGrace time.Duration

	Database  store.Config
	Webhooks  webhook.Config
	Audit     audit.Config
	Retention store.RetentionConfig

	// AuditLogPath is the write-through audit file. Empty disables the
	// file sink.
	AuditLogPath string

	Adapters AdaptersConfig

	// Policies and Permissions seed the security manager at startup.
	Policies    []security.Policy
	Permissions []security.Permission
}

// AdaptersConfig groups downstream integration settings. Any adapter left
// unconfigured degrades to a mock at construction time.
type AdaptersConfig struct {
	Chat          adapters.ChatConfig
	Email         adapters.EmailConfig
	Ticket        adapters.HTTPConfig
	Workflow      adapters.HTTPConfig
	Documentation adapters.HTTPConfig
	Monitoring    adapters.HTTPConfig
	SecurityScan  adapters.HTTPConfig

	// EscalationChannel is where the escalation adapter posts. Defaults
	// to the chat default channel.
	EscalationChannel string
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Policies     int
	Permissions  int
	LiveAdapters int
}

// Stats reports how much configuration was loaded. LiveAdapters counts
// integrations with credentials set; the rest run as mocks.
func (c *Config) Stats() Stats {
	live := 0
	if c.Adapters.Chat.Token != "" {
		live++
	}
	if c.Adapters.Email.Host != "" {
		live++
	}
	for _, h := range []adapters.HTTPConfig{
		c.Adapters.Ticket,
		c.Adapters.Workflow,
		c.Adapters.Documentation,
		c.Adapters.Monitoring,
		c.Adapters.SecurityScan,
	} {
		if h.BaseURL != "" {
			live++
		}
	}
	return Stats{
		Policies:     len(c.Policies),
		Permissions:  len(c.Permissions),
		LiveAdapters: live,
	}
}
