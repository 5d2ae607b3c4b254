//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlowAndProtectedEndpoints(t *testing.T) {
	server := newServer(t, testConfig(t))
	s := registerAndLogin(t, server, "", "")

	profileResp := doJSON(t, http.MethodGet, server.URL+"/auth/profile", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)

	var profile struct {
		Data struct {
			UserID      int64    `json:"user_id"`
			Role        string   `json:"role"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	decode(t, profileResp, &profile)
	assert.Equal(t, s.UserID, profile.Data.UserID)
	assert.Equal(t, "Operator", profile.Data.Role)
	assert.NotEmpty(t, profile.Data.Permissions)

	refreshResp := doJSON(t, http.MethodPost, server.URL+"/auth/refresh", "", map[string]string{"refresh_token": s.RefreshToken})
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)

	logoutResp := doJSON(t, http.MethodPost, server.URL+"/auth/logout", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)

	rolesResp := doJSON(t, http.MethodGet, server.URL+"/auth/roles", "", nil)
	require.Equal(t, http.StatusUnauthorized, rolesResp.StatusCode)
}

func TestAdminCanDeactivateUser(t *testing.T) {
	cfg := testConfig(t)
	server := newServer(t, cfg)
	admin := login(t, server, cfg.SeedAdminUsername, cfg.SeedAdminPassword)
	viewer := registerAndLogin(t, server, admin.AccessToken, "Viewer")

	statusURL := fmt.Sprintf("%s/auth/users/%d/status", server.URL, viewer.UserID)

	denied := doJSON(t, http.MethodPut, statusURL, viewer.AccessToken, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusForbidden, denied.StatusCode)

	updated := doJSON(t, http.MethodPut, statusURL, admin.AccessToken, map[string]bool{"is_active": false})
	require.Equal(t, http.StatusOK, updated.StatusCode)

	profile := doJSON(t, http.MethodGet, server.URL+"/auth/profile", viewer.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, profile.StatusCode)
}

func TestAnonymousRegistrationCannotChooseRole(t *testing.T) {
	server := newServer(t, testConfig(t))
	username := uniqueName("mallory")

	resp := doJSON(t, http.MethodPost, server.URL+"/auth/register", "", map[string]any{
		"username":  username,
		"password":  "Password123!",
		"email":     username + "@example.com",
		"role_name": "Admin",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	denied := doJSON(t, http.MethodPost, server.URL+"/auth/login", "", map[string]string{
		"username": username,
		"password": "Password123!",
	})
	assert.Equal(t, http.StatusUnauthorized, denied.StatusCode)
}
