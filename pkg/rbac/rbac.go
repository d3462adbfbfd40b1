package rbac

import "fmt"

// Role is the closed set of roles known to the system. The external auth
// collaborator puts one of these in the token; anything else parses to
// RoleUnknown and is denied everywhere.
type Role int

const (
	RoleUnknown Role = iota
	RoleResearcher
	RoleManager
	RoleAdmin
)

// ParseRole maps the token claim string onto the closed role set.
func ParseRole(s string) Role {
	switch s {
	case "researcher":
		return RoleResearcher
	case "manager":
		return RoleManager
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleResearcher:
		return "researcher"
	case RoleManager:
		return "manager"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Resource is the closed set of protected resources.
type Resource int

const (
	ResourceTask Resource = iota
	ResourceTaskRequest
	ResourceNotification
)

// Action is the closed set of actions on a resource.
type Action int

const (
	ActionRead Action = iota
	ActionCreate
	ActionReview
	ActionComplete
)

// Allows is the total permission function: every (role, resource, action)
// triple has a defined answer, defaulting to deny.
func Allows(role Role, res Resource, act Action) bool {
	switch role {
	case RoleAdmin, RoleManager:
		// Managers review requests and may complete tasks directly; they can
		// also create requests for tasks assigned to themselves.
		return true
	case RoleResearcher:
		switch res {
		case ResourceTask:
			return act == ActionRead
		case ResourceTaskRequest:
			return act == ActionRead || act == ActionCreate
		case ResourceNotification:
			return act == ActionRead
		}
	}
	return false
}

// Check returns a PermissionDeniedError when the role may not perform the
// action, for callers that prefer an error over a bool.
func Check(role Role, res Resource, act Action) error {
	if !Allows(role, res, act) {
		return &PermissionDeniedError{Role: role}
	}
	return nil
}

// PermissionDeniedError reports an action the role is not authorized for.
type PermissionDeniedError struct {
	Role Role
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %s has insufficient permissions", e.Role)
}
