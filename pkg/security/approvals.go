package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/relay/pkg/audit"
	"github.com/codeready-toolchain/relay/pkg/schema"
	"github.com/codeready-toolchain/relay/pkg/store"
)

// DefaultApprovalTTL bounds how long an approval request stays pending.
const DefaultApprovalTTL = 24 * time.Hour

// ApprovalStore is the slice of the event store the approval lifecycle
// needs.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, rec *store.ApprovalRecord) (*store.ApprovalRecord, error)
	GetApproval(ctx context.Context, approvalID string) (*store.ApprovalRecord, error)
	GrantApproval(ctx context.Context, approvalID, approver string) (*store.ApprovalRecord, error)
	RejectApproval(ctx context.Context, approvalID, approver string) error
}

// ApprovalKey derives the deterministic approval id for an action and its
// critical input: sha256(action || canonical(input)) truncated to 16 hex
// characters. Equal logical requests collapse onto one record.
func ApprovalKey(actionName string, input map[string]any) (string, error) {
	canonical, err := schema.CanonicalJSON(input)
	if err != nil {
		return "", fmt.Errorf("failed to derive approval key: %w", err)
	}
	sum := sha256.Sum256(append([]byte(actionName), canonical...))
	return hex.EncodeToString(sum[:])[:16], nil
}

// RequestApproval creates (or returns the existing) pending approval for
// the action and input. The required grant count is frozen from the mode
// and approver set at request time.
func (m *Manager) RequestApproval(ctx context.Context, actionName string, input map[string]any, requester string, approvers []string, mode ApprovalMode) (*store.ApprovalRecord, error) {
	if len(approvers) == 0 {
		return nil, fmt.Errorf("approval for %s needs at least one approver", actionName)
	}
	key, err := ApprovalKey(actionName, input)
	if err != nil {
		return nil, err
	}

	ttl := DefaultApprovalTTL
	if policy := m.Policy(actionName); policy != nil && policy.ApprovalTTL > 0 {
		ttl = policy.ApprovalTTL
	}

	rec, err := m.approvals.CreateApproval(ctx, &store.ApprovalRecord{
		ApprovalID: key,
		ActionName: actionName,
		Requester:  requester,
		Approvers:  approvers,
		Required:   mode.RequiredCount(len(approvers)),
		ExpiresAt:  m.now().UTC().Add(ttl),
	})
	if err != nil {
		return nil, err
	}

	m.auditApproval(ctx, "approval_requested", requester, actionName, map[string]any{
		"approval_id": rec.ApprovalID,
		"approvers":   approvers,
		"required":    rec.Required,
	})
	return rec, nil
}

// GrantApproval records one approver's grant. Duplicate grants and grants
// on resolved or expired records return store.ErrConflict.
func (m *Manager) GrantApproval(ctx context.Context, approvalID, approver string) (*store.ApprovalRecord, error) {
	rec, err := m.approvals.GrantApproval(ctx, approvalID, approver)
	if err != nil {
		return nil, err
	}
	eventType := "approval_granted"
	if rec.Status == store.ApprovalApproved {
		eventType = "approval_resolved"
	}
	m.auditApproval(ctx, eventType, approver, rec.ActionName, map[string]any{
		"approval_id": approvalID,
		"received":    len(rec.ApprovalsReceived),
		"required":    rec.Required,
	})
	return rec, nil
}

// RejectApproval resolves a pending approval as rejected.
func (m *Manager) RejectApproval(ctx context.Context, approvalID, approver string) error {
	if err := m.approvals.RejectApproval(ctx, approvalID, approver); err != nil {
		return err
	}
	m.auditApproval(ctx, "approval_rejected", approver, "", map[string]any{
		"approval_id": approvalID,
	})
	return nil
}

// CheckApprovalStatus reports whether a matching approval is approved and
// unexpired. A missing record is simply "not approved".
func (m *Manager) CheckApprovalStatus(ctx context.Context, actionName string, input map[string]any) (bool, error) {
	key, err := ApprovalKey(actionName, input)
	if err != nil {
		return false, err
	}
	rec, err := m.approvals.GetApproval(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Status == store.ApprovalApproved && rec.ExpiresAt.After(m.now().UTC()), nil
}

// CheckApprovalGate enforces the approval requirement for an action: nil
// when no approval is required or an approved record exists, otherwise
// ErrApprovalRequired. required forces the gate even when no policy does,
// for actions whose definitions always demand approval.
func (m *Manager) CheckApprovalGate(ctx context.Context, actionName string, input map[string]any, required bool) error {
	policy := m.Policy(actionName)
	if !required && (policy == nil || !policy.ApprovalRequired) {
		return nil
	}
	if m.approvals == nil {
		return fmt.Errorf("%w: %s has no approval backend", ErrApprovalRequired, actionName)
	}
	approved, err := m.CheckApprovalStatus(ctx, actionName, input)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("%w: %s", ErrApprovalRequired, actionName)
	}
	return nil
}

func (m *Manager) auditApproval(ctx context.Context, eventType, userID, actionName string, data map[string]any) {
	if m.auditor == nil {
		return
	}
	opts := []audit.Option{audit.WithUser(userID)}
	if actionName != "" {
		opts = append(opts, audit.WithAction(actionName))
	}
	if _, err := m.auditor.Log(ctx, eventType, store.AuditInfo, data, opts...); err != nil {
		slog.Warn("Failed to audit approval event", "event_type", eventType, "error", err)
	}
}
