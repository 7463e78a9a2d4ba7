package models

// UserRole represents the roles carried in verified access tokens.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleRegistrar  UserRole = "REGISTRAR"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// CanOverride reports whether the role may bypass enrollment rules.
func (r UserRole) CanOverride() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleRegistrar:
		return true
	}
	return false
}

// Actor identifies the already-authenticated caller of a privileged operation.
type Actor struct {
	ID   string
	Role UserRole
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
