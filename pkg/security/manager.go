package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/store"
)

// Auditor records security decisions. *audit.Logger satisfies it.
type Auditor interface {
	Log(ctx context.Context, eventType string, level store.AuditLevel, data map[string]any, opts ...audit.Option) (int64, error)
}

// Manager holds policies, user permissions, and the per-user rate windows,
// and drives the approval lifecycle. Safe for concurrent use. Rate windows
// are in-memory and advisory; they reset on restart.
type Manager struct {
	approvals ApprovalStore
	auditor   Auditor

	mu          sync.Mutex
	policies    map[string]*Policy
	permissions map[string]*Permission
	windows     map[string][]time.Time

	now func() time.Time
}

// NewManager creates a security manager. approvals may be nil when the
// deployment runs without approval-gated actions; auditor may be nil in
// tests.
func NewManager(approvals ApprovalStore, auditor Auditor) *Manager {
	return &Manager{
		approvals:   approvals,
		auditor:     auditor,
		policies:    make(map[string]*Policy),
		permissions: make(map[string]*Permission),
		windows:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// SetPolicy installs or replaces the policy for an action.
func (m *Manager) SetPolicy(policy *Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[policy.ActionName] = policy
}

// Policy returns the policy for an action, or nil.
func (m *Manager) Policy(actionName string) *Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policies[actionName]
}

// SetPermission installs or replaces a user's permission grant.
func (m *Manager) SetPermission(perm *Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions[perm.UserID] = perm
}

// Permission returns a user's grant, or nil.
func (m *Manager) Permission(userID string) *Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permissions[userID]
}

// LoadPolicies installs a batch of policies (config startup path).
func (m *Manager) LoadPolicies(policies []Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range policies {
		m.policies[policies[i].ActionName] = &policies[i]
	}
}

// LoadPermissions installs a batch of user grants (config startup path).
func (m *Manager) LoadPermissions(perms []Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range perms {
		m.permissions[perms[i].UserID] = &perms[i]
	}
}

// CheckPermission decides whether userID may execute actionName at
// neededLevel (empty means the policy's own security level). The decision
// procedure, all fail-closed:
//
//  1. Grant exists and is unexpired.
//  2. Policy exists for the action.
//  3. User carries the policy's required role.
//  4. User clearance ranks at or above the needed level.
//  5. The hourly per-user window has room.
//  6. Record the attempt and allow.
//
// Denials return ErrPermissionDenied or ErrRateLimited and are audited.
func (m *Manager) CheckPermission(ctx context.Context, userID, actionName string, neededLevel Level) error {
	now := m.now().UTC()

	m.mu.Lock()
	perm := m.permissions[userID]
	policy := m.policies[actionName]
	m.mu.Unlock()

	if perm == nil {
		return m.deny(ctx, userID, actionName, "no permission grant")
	}
	if perm.Expired(now) {
		return m.deny(ctx, userID, actionName, "permission expired")
	}
	if policy == nil {
		return m.deny(ctx, userID, actionName, "no policy for action")
	}
	if policy.RequiredRole != "" && !perm.HasRole(policy.RequiredRole) {
		return m.deny(ctx, userID, actionName, fmt.Sprintf("missing role %q", policy.RequiredRole))
	}

	if neededLevel == "" {
		neededLevel = policy.SecurityLevel
	}
	if perm.Clearance.Rank() < neededLevel.Rank() {
		return m.deny(ctx, userID, actionName,
			fmt.Sprintf("clearance %s below required %s", perm.Clearance, neededLevel))
	}
	if policy.AllowedHours != nil && !policy.AllowedHours.Contains(now.Hour()) {
		return m.deny(ctx, userID, actionName, "outside allowed hours")
	}

	if err := m.recordAttempt(userID, actionName, policy.MaxExecutionsPerHour, now); err != nil {
		m.auditDecision(ctx, "rate_limit_exceeded", userID, actionName, "hourly window full")
		return err
	}
	return nil
}

// IPAllowed reports whether ip may invoke the action. Actions without an
// allowlist accept every origin.
func (m *Manager) IPAllowed(actionName, ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy := m.policies[actionName]
	if policy == nil || len(policy.IPAllowlist) == 0 {
		return true
	}
	for _, allowed := range policy.IPAllowlist {
		if allowed == ip {
			return true
		}
	}
	return false
}

// recordAttempt enforces step 5 and 6: the window is checked and the
// attempt recorded under one lock acquisition so concurrent callers cannot
// both slip under the limit.
func (m *Manager) recordAttempt(userID, actionName string, maxPerHour int, now time.Time) error {
	if maxPerHour <= 0 {
		return nil
	}
	key := userID + "|" + actionName
	cutoff := now.Add(-time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.windows[key]
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= maxPerHour {
		m.windows[key] = kept
		return fmt.Errorf("%w: %s on %s (%d/hour)", ErrRateLimited, userID, actionName, maxPerHour)
	}
	m.windows[key] = append(kept, now)
	return nil
}

func (m *Manager) deny(ctx context.Context, userID, actionName, reason string) error {
	m.auditDecision(ctx, "permission_denied", userID, actionName, reason)
	return fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
}

func (m *Manager) auditDecision(ctx context.Context, eventType, userID, actionName, reason string) {
	if m.auditor == nil {
		return
	}
	if _, err := m.auditor.Log(ctx, eventType, store.AuditWarning,
		map[string]any{"reason": reason},
		audit.WithUser(userID), audit.WithAction(actionName)); err != nil {
		slog.Warn("Failed to audit security decision", "event_type", eventType, "error", err)
	}
}
