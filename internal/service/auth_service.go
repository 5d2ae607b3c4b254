package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rbac-auth/internal/model"
	"rbac-auth/internal/password"
	"rbac-auth/internal/repository"
	"rbac-auth/internal/token"
	"rbac-auth/pkg/apierror"
)

const (
	DefaultRoleName = "Operator"

	// PermissionManageUsers gates account activation changes.
	PermissionManageUsers = "MANAGE_USERS"
)

type UserStore interface {
	FindByID(ctx context.Context, id int64, include model.Include) (*model.User, error)
	FindByUsername(ctx context.Context, username string, include model.Include) (*model.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error)
	Create(ctx context.Context, u *model.User) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	SetActive(ctx context.Context, id int64, active bool, updatedBy *int64) error
}

type RoleStore interface {
	FindByName(ctx context.Context, name string, withPermissions bool) (*model.Role, error)
	List(ctx context.Context) ([]model.Role, error)
}

type DepartmentStore interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext string, hash string) bool
}

type TokenIssuer interface {
	IssueAccessToken(subject string, extra map[string]any) (string, error)
	IssueRefreshToken(subject string) (string, error)
	Verify(tokenString string, kind token.Kind) (*token.Claims, error)
}

// Recorder receives one outcome per service call; outcome is "success" or
// the lower-cased error code.
type Recorder interface {
	AuthOutcome(operation string, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthOutcome(string, string) {}

type Option func(*AuthService)

func WithDefaultRole(name string) Option {
	return func(s *AuthService) {
		if name = strings.TrimSpace(name); name != "" {
			s.defaultRole = name
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *AuthService) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

type AuthService struct {
	users       UserStore
	roles       RoleStore
	departments DepartmentStore
	hasher      PasswordHasher
	issuer      TokenIssuer
	recorder    Recorder
	defaultRole string
	now         func() time.Time

	// dummyHash is verified against when the username is unknown so both
	// failure paths cost one hash comparison.
	dummyHash string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

type RegisterInput struct {
	Username     string
	Password     string
	Email        string
	FullName     *string
	RoleName     string
	DepartmentID *int64
	// Caller is the authenticated user, if any. Assigning any role other
	// than the default requires the caller to hold MANAGE_USERS.
	Caller *model.User
}

func NewAuthService(users UserStore, roles RoleStore, departments DepartmentStore, hasher PasswordHasher, issuer TokenIssuer, opts ...Option) (*AuthService, error) {
	if users == nil || roles == nil || departments == nil || hasher == nil || issuer == nil {
		return nil, errors.New("auth service: stores, hasher and issuer are required")
	}

	s := &AuthService{
		users:       users,
		roles:       roles,
		departments: departments,
		hasher:      hasher,
		issuer:      issuer,
		recorder:    noopRecorder{},
		defaultRole: DefaultRoleName,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := hasher.Hash("timing-equaliser-" + strconv.FormatInt(time.Now().UnixNano(), 36))
	if err != nil {
		return nil, fmt.Errorf("auth service: prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

func (s *AuthService) Login(ctx context.Context, username string, plaintext string) (result *LoginResult, err error) {
	defer func() { s.observe("login", err) }()

	if username == "" || plaintext == "" {
		return nil, apierror.BadRequest("Username and password are required", "")
	}

	user, err := s.users.FindByUsername(ctx, username, model.IncludeProfile)
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(plaintext, s.dummyHash)
		return nil, apierror.InvalidCredentials()
	}
	if err != nil {
		return nil, s.internal("login lookup failed", err, "username", username)
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, apierror.InvalidCredentials()
	}

	if !user.IsActive {
		return nil, apierror.AccountInactive()
	}

	subject := strconv.FormatInt(user.ID, 10)
	access, err := s.issuer.IssueAccessToken(subject, roleClaims(user))
	if err != nil {
		return nil, s.internal("issue access token failed", err, "user_id", user.ID)
	}
	refresh, err := s.issuer.IssueRefreshToken(subject)
	if err != nil {
		return nil, s.internal("issue refresh token failed", err, "user_id", user.ID)
	}

	now := s.now().UTC()
	if updateErr := s.users.UpdateLastLogin(ctx, user.ID, now); updateErr != nil {
		slog.Error("failed to record last login", "user_id", user.ID, "error", updateErr)
	} else {
		user.LastLogin = &now
		user.UpdatedAt = &now
	}

	slog.Info("user logged in", "user_id", user.ID, "role", user.RoleName())
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}

// Refresh exchanges a refresh token for a new access token. The role claim is
// re-derived from the store so role changes take effect on the next refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (access string, err error) {
	defer func() { s.observe("refresh", err) }()

	claims, err := s.issuer.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		return "", tokenError(err)
	}

	user, err := s.loadSubject(ctx, claims, model.Include{Role: true}, http.StatusUnauthorized)
	if err != nil {
		return "", err
	}

	access, err = s.issuer.IssueAccessToken(claims.Subject, roleClaims(user))
	if err != nil {
		return "", s.internal("issue access token failed", err, "user_id", user.ID)
	}
	return access, nil
}

func (s *AuthService) Profile(ctx context.Context, accessToken string) (user *model.User, err error) {
	defer func() { s.observe("profile", err) }()

	claims, err := s.issuer.Verify(accessToken, token.KindAccess)
	if err != nil {
		return nil, tokenError(err)
	}

	return s.loadSubject(ctx, claims, model.IncludeProfile, http.StatusNotFound)
}

// Authenticate resolves the caller behind an access token with its role and
// permissions loaded from the store. A vanished user is reported as 401.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := s.issuer.Verify(accessToken, token.KindAccess)
	if err != nil {
		return nil, tokenError(err)
	}

	return s.loadSubject(ctx, claims, model.IncludeProfile, http.StatusUnauthorized)
}

// Logout only proves the caller holds a live access token. Tokens remain
// usable until they expire; the client is expected to discard them.
func (s *AuthService) Logout(_ context.Context, accessToken string) (err error) {
	defer func() { s.observe("logout", err) }()

	claims, err := s.issuer.Verify(accessToken, token.KindAccess)
	if err != nil {
		return tokenError(err)
	}

	slog.Info("user logged out", "user_id", claims.Subject)
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (id int64, err error) {
	defer func() { s.observe("register", err) }()

	if in.Username == "" || in.Password == "" || in.Email == "" {
		return 0, apierror.BadRequest("Username, password, and email are required", "")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return 0, s.internal("registration lookup failed", err, "username", in.Username)
	}
	if exists {
		return 0, apierror.Conflict("Username or email already exists")
	}

	return s.create(ctx, in, false)
}

// EnsureAccount creates a privileged account unless the username or email is
// already taken. It bypasses the caller check and backs the startup bootstrap.
func (s *AuthService) EnsureAccount(ctx context.Context, in RegisterInput) (created bool, err error) {
	if in.Username == "" || in.Password == "" || in.Email == "" {
		return false, errors.New("ensure account: username, password and email are required")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return false, fmt.Errorf("ensure account %s: %w", in.Username, err)
	}
	if exists {
		return false, nil
	}

	if _, err := s.create(ctx, in, true); err != nil {
		return false, fmt.Errorf("ensure account %s: %w", in.Username, err)
	}
	return true, nil
}

func canAssignRoles(caller *model.User) bool {
	return caller != nil && caller.Role.HasPermission(PermissionManageUsers)
}

func (s *AuthService) create(ctx context.Context, in RegisterInput, privileged bool) (int64, error) {
	roleName := strings.TrimSpace(in.RoleName)
	if roleName == "" {
		roleName = s.defaultRole
	}
	role, err := s.roles.FindByName(ctx, roleName, false)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, apierror.BadRequest(fmt.Sprintf("Role '%s' not found.", roleName), "")
	}
	if err != nil {
		return 0, s.internal("role lookup failed", err, "role", roleName)
	}

	if !privileged && role.Name != s.defaultRole && !canAssignRoles(in.Caller) {
		return 0, apierror.Forbidden(fmt.Sprintf("Assigning role '%s' requires %s", role.Name, PermissionManageUsers))
	}

	if in.DepartmentID != nil {
		ok, err := s.departments.Exists(ctx, *in.DepartmentID)
		if err != nil {
			return 0, s.internal("department lookup failed", err, "department_id", *in.DepartmentID)
		}
		if !ok {
			return 0, apierror.BadRequest("Department not found", strconv.FormatInt(*in.DepartmentID, 10))
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, password.ErrTooLong) {
		return 0, apierror.BadRequest("Password is too long", "")
	}
	if err != nil {
		return 0, s.internal("hash password failed", err, "username", in.Username)
	}

	email := in.Email
	user := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		FullName:     in.FullName,
		Email:        &email,
		RoleID:       role.ID,
		DepartmentID: in.DepartmentID,
		IsActive:     true,
	}
	if in.Caller != nil {
		user.CreatedByUserID = &in.Caller.ID
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, repository.ErrDuplicate) {
			return 0, apierror.Conflict("Username or email already exists")
		}
		slog.Error("create user failed", "username", in.Username, "error", err)
		return 0, apierror.Internal("Registration failed due to an internal error.")
	}

	slog.Info("user registered", "user_id", user.ID, "role", role.Name)
	return user.ID, nil
}

// SetActive activates or deactivates targetID on behalf of actor. actor must
// have been loaded with its permissions.
func (s *AuthService) SetActive(ctx context.Context, actor *model.User, targetID int64, active bool) (user *model.User, err error) {
	defer func() { s.observe("set_active", err) }()

	if actor == nil {
		return nil, apierror.Unauthorized("Authentication required")
	}
	if !actor.Role.HasPermission(PermissionManageUsers) {
		return nil, apierror.Forbidden("Missing permission " + PermissionManageUsers)
	}
	if actor.ID == targetID && !active {
		return nil, apierror.BadRequest("You cannot deactivate your own account", "")
	}

	err = s.users.SetActive(ctx, targetID, active, &actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("User not found.", http.StatusNotFound)
	}
	if err != nil {
		return nil, s.internal("set active failed", err, "user_id", targetID)
	}

	user, err = s.users.FindByID(ctx, targetID, model.IncludeProfile)
	if err != nil {
		return nil, s.internal("reload user failed", err, "user_id", targetID)
	}

	slog.Info("user activation changed", "user_id", targetID, "is_active", active, "by", actor.ID)
	return user, nil
}

func (s *AuthService) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, s.internal("list roles failed", err)
	}
	return roles, nil
}

func (s *AuthService) loadSubject(ctx context.Context, claims *token.Claims, include model.Include, missingStatus int) (*model.User, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, tokenError(token.ErrMalformed)
	}

	user, err := s.users.FindByID(ctx, id, include)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("User not found.", missingStatus)
	}
	if err != nil {
		return nil, s.internal("load user failed", err, "user_id", id)
	}

	if !user.IsActive {
		return nil, apierror.AccountInactive()
	}
	return user, nil
}

func (s *AuthService) internal(msg string, err error, attrs ...any) error {
	slog.Error(msg, append(attrs, "error", err)...)
	return apierror.Internal("Internal server error")
}

func (s *AuthService) observe(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		var apiErr *apierror.APIError
		if errors.As(err, &apiErr) {
			outcome = strings.ToLower(apiErr.Code)
		}
	}
	s.recorder.AuthOutcome(operation, outcome)
}

func roleClaims(user *model.User) map[string]any {
	return map[string]any{token.ClaimRole: user.RoleName()}
}

// tokenError maps verification failures onto the 401 error taxonomy.
func tokenError(err error) *apierror.APIError {
	switch {
	case errors.Is(err, token.ErrExpired):
		return apierror.New(apierror.CodeTokenExpired, "Token has expired", "", http.StatusUnauthorized)
	case errors.Is(err, token.ErrInvalidSignature):
		return apierror.New(apierror.CodeTokenInvalidSignature, "Signature verification failed", "", http.StatusUnauthorized)
	case errors.Is(err, token.ErrWrongKind):
		return apierror.New(apierror.CodeTokenWrongKind, "Token type is not accepted here", "", http.StatusUnauthorized)
	default:
		return apierror.New(apierror.CodeTokenMalformed, "Invalid token", "", http.StatusUnauthorized)
	}
}
