package config

import (
	"fmt"

	"github.com/codeready-toolchain/relay/pkg/security"
)

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	if err := validateServer(cfg); err != nil {
		return err
	}
	for i := range cfg.Policies {
		if err := validatePolicy(&cfg.Policies[i]); err != nil {
			return err
		}
	}
	for i := range cfg.Permissions {
		if err := validatePermission(&cfg.Permissions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateServer(cfg *Config) error {
	if cfg.ListenAddr == "" {
		return NewValidationError("server", "relay", "listen_addr", ErrMissingRequiredField)
	}
	if cfg.Webhooks.Workers <= 0 {
		return NewValidationError("server", "relay", "webhooks.workers", ErrInvalidValue)
	}
	if cfg.Webhooks.QueueSize <= 0 {
		return NewValidationError("server", "relay", "webhooks.queue_size", ErrInvalidValue)
	}
	if cfg.Webhooks.Multiplier < 1 {
		return NewValidationError("server", "relay", "webhooks.multiplier",
			fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if cfg.Audit.BufferSize <= 0 {
		return NewValidationError("server", "relay", "audit.buffer_size", ErrInvalidValue)
	}
	return nil
}

func validatePolicy(p *security.Policy) error {
	if p.ActionName == "" {
		return NewValidationError("policy", "(unnamed)", "action_name", ErrMissingRequiredField)
	}
	if p.SecurityLevel.Rank() < 0 {
		return NewValidationError("policy", p.ActionName, "security_level",
			fmt.Errorf("%w: %q", ErrInvalidValue, p.SecurityLevel))
	}
	if p.MaxExecutionsPerHour < 0 {
		return NewValidationError("policy", p.ActionName, "max_executions_per_hour", ErrInvalidValue)
	}
	switch p.ApprovalMode {
	case "", security.ApprovalSingle, security.ApprovalMajority, security.ApprovalUnanimous:
	default:
		return NewValidationError("policy", p.ActionName, "approval_mode",
			fmt.Errorf("%w: %q", ErrInvalidValue, p.ApprovalMode))
	}
	if hr := p.AllowedHours; hr != nil {
		if hr.Start < 0 || hr.Start > 23 || hr.End < 0 || hr.End > 24 {
			return NewValidationError("policy", p.ActionName, "allowed_hours",
				fmt.Errorf("%w: hours must be within 0-24", ErrInvalidValue))
		}
	}
	return nil
}

func validatePermission(p *security.Permission) error {
	if p.UserID == "" {
		return NewValidationError("permission", "(unnamed)", "user_id", ErrMissingRequiredField)
	}
	if len(p.Roles) == 0 {
		return NewValidationError("permission", p.UserID, "roles", ErrMissingRequiredField)
	}
	if p.Clearance.Rank() < 0 {
		return NewValidationError("permission", p.UserID, "clearance",
			fmt.Errorf("%w: %q", ErrInvalidValue, p.Clearance))
	}
	return nil
}
