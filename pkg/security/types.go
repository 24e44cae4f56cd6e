// Package security enforces who may execute which actions: role and
// clearance checks, per-user rate windows, the approval lifecycle, and
// input sanitization. All checks fail closed.
package security

import (
	"errors"
	"time"
)

// Sentinel errors surfaced to the engine and mapped at the API edge.
var (
	// ErrPermissionDenied means a role, clearance, policy, or restriction
	// check failed.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited means the per-user-per-action hourly window is full.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrApprovalRequired means the action needs an approval that does not
	// exist or has not been granted yet.
	ErrApprovalRequired = errors.New("approval required")
	// ErrUnsafeInput means sanitization rejected the input.
	ErrUnsafeInput = errors.New("unsafe input rejected")
)

// Level is a clearance tier. Policies demand a minimum level; users carry
// one.
type Level string

const (
	LevelStandard Level = "standard"
	LevelElevated Level = "elevated"
	LevelAdmin    Level = "admin"
)

// Rank orders levels (standard < elevated < admin). Unknown levels rank
// below standard so they never satisfy a check.
func (l Level) Rank() int {
	switch l {
	case LevelStandard:
		return 0
	case LevelElevated:
		return 1
	case LevelAdmin:
		return 2
	default:
		return -1
	}
}

// Policy is the security posture of one action.
type Policy struct {
	ActionName           string        `yaml:"action_name"`
	RequiredRole         string        `yaml:"required_role"`
	SecurityLevel        Level         `yaml:"security_level"`
	MaxExecutionsPerHour int           `yaml:"max_executions_per_hour"`
	ApprovalRequired     bool          `yaml:"approval_required"`
	ApprovalMode         ApprovalMode  `yaml:"approval_mode,omitempty"`
	ApprovalTTL          time.Duration `yaml:"approval_ttl,omitempty"`
	// AllowedHours restricts execution to UTC hours [Start, End). Nil means
	// always allowed.
	AllowedHours *HourRange `yaml:"allowed_hours,omitempty"`
	IPAllowlist  []string   `yaml:"ip_allowlist,omitempty"`
}

// HourRange is a half-open UTC hour window. Start > End wraps midnight.
type HourRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Contains reports whether hour (0-23) falls inside the range.
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

// Permission is one user's standing grant.
type Permission struct {
	UserID       string     `yaml:"user_id"`
	Roles        []string   `yaml:"roles"`
	Clearance    Level      `yaml:"clearance"`
	Restrictions []string   `yaml:"restrictions,omitempty"`
	ExpiresAt    *time.Time `yaml:"expires_at,omitempty"`
}

// HasRole reports whether the user carries the given role.
func (p *Permission) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Expired reports whether the grant has lapsed.
func (p *Permission) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// ApprovalMode determines how many approvers must grant before an approval
// resolves.
type ApprovalMode string

const (
	ApprovalSingle    ApprovalMode = "single"
	ApprovalMajority  ApprovalMode = "majority"
	ApprovalUnanimous ApprovalMode = "unanimous"
)

// RequiredCount returns the grant quorum for n approvers. The count is
// frozen into the approval record at request time.
func (m ApprovalMode) RequiredCount(n int) int {
	switch m {
	case ApprovalMajority:
		return n/2 + 1
	case ApprovalUnanimous:
		return n
	default:
		return 1
	}
}
