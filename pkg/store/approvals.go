package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateApproval inserts a pending approval record. If a record with the same
// approval id already exists it is returned unchanged (the deterministic id
// collapses repeated requests onto one record).
func (s *Store) CreateApproval(ctx context.Context, rec *ApprovalRecord) (*ApprovalRecord, error) {
	approvers, err := json.Marshal(rec.Approvers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal approvers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approvals (approval_id, action_name, requester, approvers, required, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (approval_id) DO NOTHING`,
		rec.ApprovalID, rec.ActionName, rec.Requester, approvers, rec.Required, rec.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create approval: %w", err)
	}
	return s.GetApproval(ctx, rec.ApprovalID)
}

// GetApproval returns an approval record by id.
func (s *Store) GetApproval(ctx context.Context, approvalID string) (*ApprovalRecord, error) {
	rec := &ApprovalRecord{}
	var approvers, received []byte
	var resolvedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT approval_id, action_name, requester, approvers, approvals_received,
		        required, status, created_at, expires_at, resolved_at
		 FROM approvals WHERE approval_id = $1`, approvalID,
	).Scan(&rec.ApprovalID, &rec.ActionName, &rec.Requester, &approvers, &received,
		&rec.Required, &rec.Status, &rec.CreatedAt, &rec.ExpiresAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	if err := json.Unmarshal(approvers, &rec.Approvers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approvers: %w", err)
	}
	if err := json.Unmarshal(received, &rec.ApprovalsReceived); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approvals_received: %w", err)
	}
	if resolvedAt.Valid {
		rec.ResolvedAt = &resolvedAt.Time
	}
	return rec, nil
}

// GrantApproval appends an approver's grant with compare-and-set semantics:
// the update only applies while the record is pending, unexpired, and the
// approver has not already granted. When the grant count reaches the required
// quorum the record transitions to approved atomically.
//
// Returns ErrConflict for a duplicate grant or a non-pending record.
func (s *Store) GrantApproval(ctx context.Context, approvalID, approver string) (*ApprovalRecord, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals
		 SET approvals_received = approvals_received || to_jsonb($2::text),
		     status = CASE
		       WHEN jsonb_array_length(approvals_received) + 1 >= required THEN 'approved'
		       ELSE status
		     END,
		     resolved_at = CASE
		       WHEN jsonb_array_length(approvals_received) + 1 >= required THEN now()
		       ELSE resolved_at
		     END
		 WHERE approval_id = $1
		   AND status = 'pending'
		   AND expires_at > now()
		   AND approvers ? $2
		   AND NOT approvals_received ? $2`,
		approvalID, approver)
	if err != nil {
		return nil, fmt.Errorf("failed to grant approval: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Distinguish missing record from CAS failure.
		if _, err := s.GetApproval(ctx, approvalID); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	return s.GetApproval(ctx, approvalID)
}

// RejectApproval transitions a pending approval to rejected.
func (s *Store) RejectApproval(ctx context.Context, approvalID, approver string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = 'rejected', resolved_at = now()
		 WHERE approval_id = $1 AND status = 'pending' AND approvers ? $2`,
		approvalID, approver)
	if err != nil {
		return fmt.Errorf("failed to reject approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// ExpireApprovals transitions all overdue pending approvals to expired.
// Returns the number of records expired.
func (s *Store) ExpireApprovals(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = 'expired', resolved_at = now()
		 WHERE status = 'pending' AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to expire approvals: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
