package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin     = "admin"
	RoleDoctor    = "doctor"
	RoleAssistant = "assistant"
)

// StaffRoles may read and triage calls.
var StaffRoles = []string{RoleAdmin, RoleDoctor, RoleAssistant}

func IsAdmin(role string) bool { return role == RoleAdmin }

func Valid(role string) bool {
	switch role {
	case RoleAdmin, RoleDoctor, RoleAssistant:
		return true
	}
	return false
}
