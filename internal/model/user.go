package model

import "time"

type User struct {
	ID              int64      `json:"user_id"`
	Username        string     `json:"username"`
	PasswordHash    string     `json:"-"`
	FullName        *string    `json:"full_name"`
	Email           *string    `json:"email"`
	RoleID          int64      `json:"role_id"`
	DepartmentID    *int64     `json:"department_id"`
	IsActive        bool       `json:"is_active"`
	LastLogin       *time.Time `json:"last_login"`
	CreatedByUserID *int64     `json:"created_by_user_id"`
	UpdatedByUserID *int64     `json:"updated_by_user_id"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`

	// Populated only when requested through Include.
	Role       *Role       `json:"-"`
	Department *Department `json:"-"`
}

// Include selects which relations a user lookup resolves alongside the row.
type Include struct {
	Role        bool
	Permissions bool
	Department  bool
}

var (
	IncludeNone    = Include{}
	IncludeProfile = Include{Role: true, Permissions: true}
)

type Role struct {
	ID          int64        `json:"role_id"`
	Name        string       `json:"role_name"`
	Description *string      `json:"description"`
	Permissions []Permission `json:"-"`
	CreatedAt   *time.Time   `json:"created_at"`
	UpdatedAt   *time.Time   `json:"updated_at"`
}

type Permission struct {
	ID          int64      `json:"permission_id"`
	Name        string     `json:"permission_name"`
	Module      *string    `json:"module"`
	Description *string    `json:"description"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

type Department struct {
	ID          int64      `json:"department_id"`
	Name        string     `json:"department_name"`
	Description *string    `json:"description"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// PermissionNames flattens the permissions granted through the user's role.
// It returns an empty slice when the role or its permissions were not loaded.
func (u *User) PermissionNames() []string {
	if u == nil || u.Role == nil {
		return []string{}
	}

	return u.Role.PermissionNames()
}

func (r *Role) PermissionNames() []string {
	if r == nil {
		return []string{}
	}

	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

func (r *Role) HasPermission(name string) bool {
	if r == nil {
		return false
	}

	for _, p := range r.Permissions {
		if p.Name == name {
			return true
		}
	}
	return false
}

func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}
