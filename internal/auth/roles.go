package auth

import (
	"fmt"
	"strings"
)

// Role is a principal's permission tier.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleOwner        Role = "OWNER"
	RoleManager      Role = "MANAGER"
	RoleFloorManager Role = "FLOOR_MANAGER"
	RoleWorker       Role = "WORKER"
)

// roleOrder lists roles from most to least privileged.
var roleOrder = []Role{RoleAdmin, RoleOwner, RoleManager, RoleFloorManager, RoleWorker}

var roleDescriptions = map[Role]string{
	RoleAdmin:        "System administrator with full access to all features and settings",
	RoleOwner:        "Business owner with complete control over organization and employees",
	RoleManager:      "Department manager with access to team management and reporting",
	RoleFloorManager: "Floor manager responsible for daily operations and attendance",
	RoleWorker:       "Regular employee with access to personal attendance and leave requests",
}

// Roles returns every role, most privileged first.
func Roles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}

// ParseRole converts user input into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleDescriptions[r]
	return ok
}

// Description returns a human readable summary of the role.
func (r Role) Description() string { return roleDescriptions[r] }

func (r Role) String() string { return string(r) }

func (r Role) rank() int {
	for i, role := range roleOrder {
		if role == r {
			return i
		}
	}
	return -1
}

// HierarchicalRoles returns role followed by every role below it.
// Unknown roles yield nil.
func HierarchicalRoles(role Role) []Role {
	idx := role.rank()
	if idx < 0 {
		return nil
	}
	out := make([]Role, len(roleOrder)-idx)
	copy(out, roleOrder[idx:])
	return out
}

// CanManage reports whether a manager role administers target.
// A role never manages its own tier.
func CanManage(manager, target Role) bool {
	if manager == target {
		return false
	}
	for _, r := range HierarchicalRoles(manager) {
		if r == target {
			return true
		}
	}
	return false
}
