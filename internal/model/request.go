package model

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username     string  `json:"username"`
	Password     string  `json:"password"`
	Email        string  `json:"email"`
	FullName     *string `json:"full_name"`
	RoleName     string  `json:"role_name"`
	DepartmentID *int64  `json:"department_id"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active"`
}
