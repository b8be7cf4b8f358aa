package rbac

type Role string
type Action string

const (
	RoleClient   Role = "client"
	RoleDesigner Role = "designer"
)

const (
	ActionRead    Action = "read"
	ActionSubmit  Action = "submit"
	ActionReply   Action = "reply"
	ActionComment Action = "comment"
	ActionTriage  Action = "triage"
	ActionManage  Action = "manage"
)

// Can reports whether role may perform action. A context without a role
// (generic host container) is read-only.
func Can(role Role, action Action) bool {
	switch role {
	case RoleDesigner:
		return true
	case RoleClient:
		return action == ActionRead || action == ActionSubmit || action == ActionReply || action == ActionComment
	default:
		return action == ActionRead
	}
}

// Parse accepts only the two known roles.
func Parse(value string) (Role, bool) {
	switch Role(value) {
	case RoleClient, RoleDesigner:
		return Role(value), true
	default:
		return "", false
	}
}

// Normalize maps unknown values to the empty (absent) role.
func Normalize(value string) Role {
	role, _ := Parse(value)
	return role
}
