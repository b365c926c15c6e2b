package provision

import "strings"

// Role identifies which profile collection an account maps to.
type Role string

const (
	RoleTeacher      Role = "teacher"
	RoleStudent      Role = "student"
	RoleParent       Role = "parent"
	RoleAdmin        Role = "admin"
	RoleOrganization Role = "organization"
)

// Roles lists every role the provisioning listener knows how to handle.
var Roles = []Role{RoleTeacher, RoleStudent, RoleParent, RoleAdmin, RoleOrganization}

// ParseRole maps a raw role string from an account event onto the closed role
// set. Unknown values return false; callers skip those events rather than
// failing on them.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleTeacher:
		return RoleTeacher, true
	case RoleStudent:
		return RoleStudent, true
	case RoleParent:
		return RoleParent, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOrganization:
		return RoleOrganization, true
	default:
		return "", false
	}
}
