package rbac

type Role string
type Action string

const (
	RoleViewer      Role = "viewer"
	RoleMember      Role = "member"
	RoleFacilitator Role = "facilitator"
	RoleAdmin       Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionVote    Action = "vote"
	ActionComment Action = "comment"
	ActionEdit    Action = "edit"
	ActionClose   Action = "close"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleFacilitator:
		return action == ActionRead || action == ActionVote || action == ActionComment || action == ActionEdit
	case RoleMember:
		return action == ActionRead || action == ActionVote || action == ActionComment
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleMember, RoleFacilitator, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
