package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/relay/pkg/security"
)

// ApprovalRequest is the body of POST /api/v1/approvals.
type ApprovalRequest struct {
	ActionName string         `json:"action_name"`
	Input      map[string]any `json:"input"`
	Approvers  []string       `json:"approvers"`
	Mode       string         `json:"mode,omitempty"`
}

// requestApprovalHandler handles POST /api/v1/approvals. Equal logical
// requests collapse onto one record, so repeating a request returns the
// existing pending approval.
func (s *Server) requestApprovalHandler(c *echo.Context) error {
	if s.deps.Security == nil {
		return unavailable(c, "security manager")
	}

	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "malformed approval request")
	}
	if req.ActionName == "" {
		return badRequest(c, "action_name is required")
	}
	if len(req.Approvers) == 0 {
		return badRequest(c, "at least one approver is required")
	}

	rec, err := s.deps.Security.RequestApproval(c.Request().Context(),
		req.ActionName, req.Input, extractUserID(c), req.Approvers,
		security.ApprovalMode(req.Mode))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// grantApprovalHandler handles POST /api/v1/approvals/:id/grant. The
// approver is taken from the proxy identity headers, never the body.
func (s *Server) grantApprovalHandler(c *echo.Context) error {
	if s.deps.Security == nil {
		return unavailable(c, "security manager")
	}
	rec, err := s.deps.Security.GrantApproval(c.Request().Context(), c.Param("id"), extractUserID(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// rejectApprovalHandler handles POST /api/v1/approvals/:id/reject.
func (s *Server) rejectApprovalHandler(c *echo.Context) error {
	if s.deps.Security == nil {
		return unavailable(c, "security manager")
	}
	if err := s.deps.Security.RejectApproval(c.Request().Context(), c.Param("id"), extractUserID(c)); err != nil {
		return renderError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"approval_id": c.Param("id"),
		"status":      "rejected",
	})
}
