package review

import (
	"context"

	"redline/api/internal/rbac"
)

// RoleLookup resolves the workspace role of a user.
type RoleLookup interface {
	UserRole(ctx context.Context, userID string) (rbac.Role, error)
}

// CanDecide answers whether a user holding role may record a decision on a
// finding with the given status. An escalated finding is reserved for its
// assignee (with the approve-escalation capability) and admins.
func CanDecide(role rbac.Role, userID string, status FindingStatus, escalatedTo string) bool {
	if !rbac.Can(role, rbac.ActionReview) {
		return false
	}
	if status != StatusEscalated {
		return true
	}
	if role == rbac.RoleAdmin {
		return true
	}
	return escalatedTo != "" && userID == escalatedTo && rbac.Can(role, rbac.ActionApproveEscalation)
}

type Gate struct {
	roles RoleLookup
}

func NewGate(roles RoleLookup) *Gate {
	return &Gate{roles: roles}
}

// Authorize checks a user against the finding state computed before the new
// decision is appended.
func (g *Gate) Authorize(ctx context.Context, userID string, state FindingState) error {
	role, err := g.roles.UserRole(ctx, userID)
	if err != nil {
		return &StoreError{Op: "lookup role", Err: err}
	}
	if CanDecide(role, userID, state.Status, state.EscalatedTo()) {
		return nil
	}
	reason := "review capability required"
	if rbac.Can(role, rbac.ActionReview) && state.Status == StatusEscalated {
		reason = "finding is escalated to another approver"
	}
	return &AuthorizationError{UserID: userID, FindingID: state.FindingID, Reason: reason}
}
