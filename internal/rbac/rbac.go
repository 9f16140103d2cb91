package rbac

type Role string
type Action string

const (
	RoleViewer   Role = "viewer"
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionEdit    Action = "edit"
	ActionComment Action = "comment"
	ActionApprove Action = "approve"
	ActionPublish Action = "publish"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReviewer:
		return action == ActionRead || action == ActionEdit || action == ActionComment || action == ActionApprove || action == ActionPublish
	case RoleAuthor:
		return action == ActionRead || action == ActionEdit || action == ActionComment
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAuthor, RoleReviewer, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
