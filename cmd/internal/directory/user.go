package directory

// Role is the closed set of user roles. Authorization decisions branch on
// this enum instead of ad-hoc string checks in callers.
type Role string

const (
	// RoleAgent is a call-center agent supervised by a SUPERVISOR user.
	RoleAgent Role = "AGENT"
	// RoleSupervisor supervises a set of agents.
	RoleSupervisor Role = "SUPERVISOR"
)

// Valid reports whether r is one of the two defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleSupervisor:
		return true
	default:
		return false
	}
}

// User is the directory view of a user account.
//
// SupervisorID is set only for AGENT users. The password hash deliberately
// never rides on this struct; credential lookups return it separately.
type User struct {
	ID           string
	Username     string
	Role         Role
	SupervisorID *string
}

// SupervisedBy reports whether u is an agent supervised by supervisorID.
func (u User) SupervisedBy(supervisorID string) bool {
	return u.Role == RoleAgent && u.SupervisorID != nil && *u.SupervisorID == supervisorID
}
