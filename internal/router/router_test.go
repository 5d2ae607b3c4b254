package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbac-auth/internal/app"
	"rbac-auth/internal/config"
	"rbac-auth/internal/database"
	"rbac-auth/internal/token"
	"rbac-auth/pkg/apierror"
)

const testSecret = "router-test-secret"

type envelope struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	UserID       int64           `json:"userId"`
	User         map[string]any  `json:"user"`
	Data         json.RawMessage `json:"data"`
	Error        *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:        "0",
		RequestTimeout:    5 * time.Second,
		DatabaseDriver:    database.DriverSQLite,
		DatabaseURL:       ":memory:",
		DBMaxConns:        1,
		JWTSecret:         testSecret,
		JWTAccessTTL:      15 * time.Minute,
		JWTRefreshTTL:     7 * 24 * time.Hour,
		JWTIssuer:         "rbac-auth",
		BcryptCost:        4,
		DefaultRole:       "Operator",
		SeedFile:          "../../configs/rbac.yaml",
		SeedAdminUsername: "root",
		SeedAdminPassword: "pw",
		SeedAdminEmail:    "root@x.com",
		SeedAdminRole:     "Admin",
		CORSOrigins:       []string{"*"},
		RateLimitRPM:      1000,
		AuthRateLimitRPM:  1000,
		LogFormat:         "pretty",
	}
}

func newServer(t *testing.T) http.Handler {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	h, err := app.Build(ctx, testConfig(), db)
	require.NoError(t, err)
	return h
}

func call(t *testing.T, h http.Handler, method string, path string, bearer string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func register(t *testing.T, h http.Handler, bearer string, body map[string]any) int64 {
	t.Helper()

	status, env := call(t, h, http.MethodPost, "/auth/register", bearer, body)
	require.Equal(t, http.StatusCreated, status, env.Message)
	require.Positive(t, env.UserID)
	return env.UserID
}

func login(t *testing.T, h http.Handler, username string, password string) envelope {
	t.Helper()

	status, env := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	return env
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func TestRegisterLoginScenario(t *testing.T) {
	h := newServer(t)

	id := register(t, h, "", map[string]any{
		"username":  "alice",
		"password":  "pw123",
		"email":     "alice@x.com",
		"full_name": "Alice A",
		"role_name": "Operator",
	})

	env := login(t, h, "alice", "pw123")
	assert.True(t, env.Success)
	assert.Equal(t, "Login successful", env.Message)
	require.NotEmpty(t, env.Token)
	require.NotEmpty(t, env.RefreshToken)
	assert.Equal(t, "Operator", env.User["role"])
	assert.Equal(t, "alice", env.User["user_name"])
	assert.NotNil(t, env.User["lastLogin"])

	verifier, err := token.NewIssuer(testSecret, time.Minute, time.Hour, token.WithIssuerName("rbac-auth"))
	require.NoError(t, err)
	claims, err := verifier.Verify(env.Token, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(id, 10), claims.Subject)
	assert.Equal(t, "Operator", claims.Role())

	status, wrong := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeInvalidCredentials, errorCode(wrong))

	past := func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	stale, err := token.NewIssuer(testSecret, time.Minute, time.Hour, token.WithIssuerName("rbac-auth"), token.WithClock(past))
	require.NoError(t, err)
	expiredRefresh, err := stale.IssueRefreshToken(strconv.FormatInt(id, 10))
	require.NoError(t, err)

	status, expired := call(t, h, http.MethodPost, "/auth/refresh", expiredRefresh, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeTokenExpired, errorCode(expired))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	h := newServer(t)
	register(t, h, "", map[string]any{"username": "bob", "password": "pw", "email": "bob@x.com"})

	wrongStatus, wrongPassword := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "bob", "password": "nope"})
	unknownStatus, unknownUser := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "nope"})

	assert.Equal(t, wrongStatus, unknownStatus)
	assert.Equal(t, errorCode(wrongPassword), errorCode(unknownUser))
	assert.Equal(t, wrongPassword.Message, unknownUser.Message)
}

func TestLoginRequiresBody(t *testing.T) {
	h := newServer(t)

	status, env := call(t, h, http.MethodPost, "/auth/login", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "No input data provided", env.Message)

	status, env = call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Username and password are required", env.Message)
}

func TestRefreshAndProfile(t *testing.T) {
	h := newServer(t)
	register(t, h, "", map[string]any{"username": "carol", "password": "pw", "email": "carol@x.com", "department_id": 1})
	session := login(t, h, "carol", "pw")

	status, refreshed := call(t, h, http.MethodPost, "/auth/refresh", session.RefreshToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, refreshed.Token)

	status, fromBody := call(t, h, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": session.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, fromBody.Token)

	status, wrongKind := call(t, h, http.MethodPost, "/auth/refresh", session.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeTokenWrongKind, errorCode(wrongKind))

	status, profile := call(t, h, http.MethodGet, "/auth/profile", refreshed.Token, nil)
	require.Equal(t, http.StatusOK, status)

	var data map[string]any
	require.NoError(t, json.Unmarshal(profile.Data, &data))
	assert.Equal(t, "carol", data["user_name"])
	assert.Equal(t, "Operator", data["role"])
	assert.EqualValues(t, 1, data["department_id"])
	assert.ElementsMatch(t, []any{"EXPORT_REPORTS", "VIEW_REPORTS", "VIEW_USERS"}, data["permissions"])
	assert.NotContains(t, string(profile.Data), "password")

	status, refreshAsAccess := call(t, h, http.MethodGet, "/auth/profile", session.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeTokenWrongKind, errorCode(refreshAsAccess))

	status, missing := call(t, h, http.MethodGet, "/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeUnauthorized, errorCode(missing))

	status, tampered := call(t, h, http.MethodGet, "/auth/profile", session.Token+"x", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeTokenInvalidSignature, errorCode(tampered))

	past := func() time.Time { return time.Now().Add(-time.Hour) }
	stale, err := token.NewIssuer(testSecret, 15*time.Minute, time.Hour, token.WithIssuerName("rbac-auth"), token.WithClock(past))
	require.NoError(t, err)
	expiredAccess, err := stale.IssueAccessToken(fmt.Sprint(login(t, h, "carol", "pw").User["user_id"]), nil)
	require.NoError(t, err)

	status, expired := call(t, h, http.MethodGet, "/auth/profile", expiredAccess, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, apierror.CodeTokenExpired, errorCode(expired))
}

func TestLogout(t *testing.T) {
	h := newServer(t)
	register(t, h, "", map[string]any{"username": "dave", "password": "pw", "email": "dave@x.com"})
	session := login(t, h, "dave", "pw")

	status, env := call(t, h, http.MethodPost, "/auth/logout", session.Token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logout acknowledged. Client should clear tokens.", env.Message)

	status, _ = call(t, h, http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegisterValidation(t *testing.T) {
	h := newServer(t)
	register(t, h, "", map[string]any{"username": "erin", "password": "pw", "email": "erin@x.com"})

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"duplicate username", map[string]any{"username": "erin", "password": "pw", "email": "other@x.com"}, http.StatusConflict, apierror.CodeConflict},
		{"duplicate email", map[string]any{"username": "erin2", "password": "pw", "email": "erin@x.com"}, http.StatusConflict, apierror.CodeConflict},
		{"unknown role", map[string]any{"username": "frank", "password": "pw", "email": "frank@x.com", "role_name": "Ghost"}, http.StatusBadRequest, apierror.CodeBadRequest},
		{"unknown department", map[string]any{"username": "gina", "password": "pw", "email": "gina@x.com", "department_id": 999}, http.StatusBadRequest, apierror.CodeBadRequest},
		{"missing email", map[string]any{"username": "hank", "password": "pw"}, http.StatusBadRequest, apierror.CodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := call(t, h, http.MethodPost, "/auth/register", "", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(env))
		})
	}

	status, _ := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "frank", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, status, "rejected registration must not create a user")
}

func TestRegisterRoleElevation(t *testing.T) {
	h := newServer(t)

	status, env := call(t, h, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "mallory", "password": "pw", "email": "mallory@x.com", "role_name": "Admin",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apierror.CodeForbidden, errorCode(env))

	status, _ = call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "mallory", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, status, "forbidden registration must not create a user")

	register(t, h, "", map[string]any{"username": "olga", "password": "pw", "email": "olga@x.com"})
	operator := login(t, h, "olga", "pw")
	assert.Equal(t, "Operator", operator.User["role"])

	status, env = call(t, h, http.MethodPost, "/auth/register", operator.Token, map[string]any{
		"username": "pete", "password": "pw", "email": "pete@x.com", "role_name": "Viewer",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apierror.CodeForbidden, errorCode(env))

	admin := login(t, h, "root", "pw")
	register(t, h, admin.Token, map[string]any{"username": "pete", "password": "pw", "email": "pete@x.com", "role_name": "Viewer"})
	assert.Equal(t, "Viewer", login(t, h, "pete", "pw").User["role"])
}

func TestUserStatusRequiresManageUsers(t *testing.T) {
	h := newServer(t)
	admin := login(t, h, "root", "pw")
	require.Equal(t, "Admin", admin.User["role"])
	adminID := int64(admin.User["user_id"].(float64))

	targetID := register(t, h, admin.Token, map[string]any{"username": "ivy", "password": "pw", "email": "ivy@x.com", "role_name": "Viewer"})
	viewer := login(t, h, "ivy", "pw")

	path := fmt.Sprintf("/auth/users/%d/status", targetID)

	status, forbidden := call(t, h, http.MethodPut, path, viewer.Token, map[string]bool{"is_active": false})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apierror.CodeForbidden, errorCode(forbidden))

	status, _ = call(t, h, http.MethodPut, path, "", map[string]bool{"is_active": false})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, updated := call(t, h, http.MethodPut, path, admin.Token, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, status, updated.Message)
	var data map[string]any
	require.NoError(t, json.Unmarshal(updated.Data, &data))
	assert.Equal(t, false, data["is_active"])

	status, inactive := call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "ivy", "password": "pw"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apierror.CodeAccountInactive, errorCode(inactive))
	assert.Empty(t, inactive.Token)

	status, _ = call(t, h, http.MethodGet, "/auth/profile", viewer.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, self := call(t, h, http.MethodPut, fmt.Sprintf("/auth/users/%d/status", adminID), admin.Token, map[string]bool{"is_active": false})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "You cannot deactivate your own account", self.Message)

	status, _ = call(t, h, http.MethodPut, "/auth/users/9999/status", admin.Token, map[string]bool{"is_active": true})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = call(t, h, http.MethodPut, path, admin.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestListRoles(t *testing.T) {
	h := newServer(t)
	register(t, h, "", map[string]any{"username": "jack", "password": "pw", "email": "jack@x.com"})
	session := login(t, h, "jack", "pw")

	status, _ := call(t, h, http.MethodGet, "/auth/roles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := call(t, h, http.MethodGet, "/auth/roles", session.Token, nil)
	require.Equal(t, http.StatusOK, status)

	var list struct {
		Roles []struct {
			Name        string   `json:"role_name"`
			Permissions []string `json:"permissions"`
		} `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))

	names := make([]string, 0, len(list.Roles))
	for _, r := range list.Roles {
		names = append(names, r.Name)
		assert.NotNil(t, r.Permissions)
	}
	assert.Equal(t, []string{"Admin", "Operator", "Viewer"}, names)
}

func TestHealthMetricsAndHeaders(t *testing.T) {
	h := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"up"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	call(t, h, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "x"})

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rbac_auth_auth_operations_total")
	assert.Contains(t, rec.Body.String(), `route="/auth/login"`)
}
