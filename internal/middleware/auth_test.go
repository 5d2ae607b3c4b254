package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbac-auth/internal/model"
	"rbac-auth/pkg/apierror"
)

type stubAuthenticator struct {
	users map[string]*model.User
}

func (s stubAuthenticator) Authenticate(_ context.Context, accessToken string) (*model.User, error) {
	if user, ok := s.users[accessToken]; ok {
		return user, nil
	}
	return nil, apierror.New(apierror.CodeTokenExpired, "Token has expired", "", http.StatusUnauthorized)
}

func newStubAuth() *AuthMiddleware {
	return NewAuthMiddleware(stubAuthenticator{users: map[string]*model.User{
		"admin-token":  {ID: 1, Role: &model.Role{Name: "Admin", Permissions: []model.Permission{{Name: "MANAGE_USERS"}}}},
		"viewer-token": {ID: 2, Role: &model.Role{Name: "Viewer", Permissions: []model.Permission{}}},
	}})
}

func userEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": user.ID})
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *model.APIError {
	t.Helper()

	var body model.APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	return body.Error
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":     "abc",
		"bearer   abc  ": "abc",
		"BEARER abc":     "abc",
		"Basic abc":      "",
		"Bearer ":        "",
		"":               "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		got, ok := BearerToken(req)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}

func TestRequireAuth(t *testing.T) {
	handler := newStubAuth().RequireAuth(userEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/roles", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apierror.CodeUnauthorized, decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/roles", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apierror.CodeTokenExpired, decodeError(t, rec).Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/roles", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	handler := newStubAuth().OptionalAuth(userEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/register", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.Header.Set("Authorization", "Bearer viewer-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"id":2}`, rec.Body.String())
}

func TestRequirePermission(t *testing.T) {
	auth := newStubAuth()
	handler := auth.RequireAuth(auth.RequirePermission("MANAGE_USERS")(okHandler()))

	req := httptest.NewRequest(http.MethodPut, "/auth/users/3/status", nil)
	req.Header.Set("Authorization", "Bearer viewer-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apierror.CodeForbidden, decodeError(t, rec).Code)

	req = httptest.NewRequest(http.MethodPut, "/auth/users/3/status", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	auth.RequirePermission("MANAGE_USERS")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecoveryRendersInternalError(t *testing.T) {
	handler := Logging(Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apierror.CodeInternal, decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestLoggingPropagatesRequestID(t *testing.T) {
	var seen string
	handler := Logging(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}
