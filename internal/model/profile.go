package model

import "time"

// UserProfile is the client-facing user payload. Field names are part of the
// public contract consumed by existing web and mobile clients.
type UserProfile struct {
	UserID       int64    `json:"user_id"`
	Username     string   `json:"user_name"`
	FullName     *string  `json:"full_name"`
	Email        *string  `json:"email"`
	Role         *string  `json:"role"`
	RoleID       int64    `json:"role_id"`
	DepartmentID *int64   `json:"department_id"`
	IsActive     bool     `json:"is_active"`
	LastLogin    *string  `json:"lastLogin"`
	Permissions  []string `json:"permissions"`
	CreatedAt    *string  `json:"created_at"`
	UpdatedAt    *string  `json:"updated_at"`
}

func (u *User) Profile() UserProfile {
	profile := UserProfile{
		UserID:       u.ID,
		Username:     u.Username,
		FullName:     u.FullName,
		Email:        u.Email,
		RoleID:       u.RoleID,
		DepartmentID: u.DepartmentID,
		IsActive:     u.IsActive,
		LastLogin:    isoTime(u.LastLogin),
		Permissions:  u.PermissionNames(),
		CreatedAt:    isoTime(u.CreatedAt),
		UpdatedAt:    isoTime(u.UpdatedAt),
	}

	if u.Role != nil {
		name := u.Role.Name
		profile.Role = &name
	}

	return profile
}

type RoleSummary struct {
	RoleID      int64    `json:"role_id"`
	Name        string   `json:"role_name"`
	Description *string  `json:"description"`
	Permissions []string `json:"permissions"`
}

func (r *Role) Summary() RoleSummary {
	return RoleSummary{
		RoleID:      r.ID,
		Name:        r.Name,
		Description: r.Description,
		Permissions: r.PermissionNames(),
	}
}

func isoTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}

	formatted := t.UTC().Format(time.RFC3339Nano)
	return &formatted
}
