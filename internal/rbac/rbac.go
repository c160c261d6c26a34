package rbac

type Role string
type Action string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead              Action = "read"
	ActionReview            Action = "review"
	ActionApproveEscalation Action = "approve_escalation"
	ActionHistory           Action = "history"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleApprover:
		return action == ActionRead || action == ActionReview || action == ActionApproveEscalation || action == ActionHistory
	case RoleReviewer:
		return action == ActionRead || action == ActionReview
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleReviewer, RoleApprover, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
