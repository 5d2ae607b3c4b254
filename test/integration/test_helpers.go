//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rbac-auth/internal/app"
	"rbac-auth/internal/config"
	"rbac-auth/internal/database"
)

// testConfig targets TEST_DATABASE_URL (PostgreSQL) when set and a throwaway
// SQLite file otherwise.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		ServerPort:              "8080",
		ServerReadHeaderTimeout: 10 * time.Second,
		ServerWriteTimeout:      30 * time.Second,
		ServerIdleTimeout:       120 * time.Second,
		RequestTimeout:          10 * time.Second,
		DatabaseDriver:          database.DriverSQLite,
		DatabaseURL:             filepath.Join(t.TempDir(), "rbac.db"),
		DBMaxConns:              4,
		DBMinConns:              1,
		JWTSecret:               "test-secret",
		JWTAccessTTL:            15 * time.Minute,
		JWTRefreshTTL:           24 * time.Hour,
		JWTIssuer:               "rbac-auth",
		BcryptCost:              4,
		DefaultRole:             "Operator",
		SeedFile:                "../../configs/rbac.yaml",
		SeedAdminUsername:       uniqueName("admin"),
		SeedAdminPassword:       "Password123!",
		SeedAdminRole:           "Admin",
		CORSOrigins:             []string{"*"},
		RateLimitRPM:            1000,
		AuthRateLimitRPM:        1000,
		LogLevel:                "info",
		LogFormat:               "pretty",
	}

	cfg.SeedAdminEmail = cfg.SeedAdminUsername + "@example.com"

	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		cfg.DatabaseDriver = database.DriverPostgres
		cfg.DatabaseURL = url
	}

	require.NoError(t, cfg.Validate())
	return cfg
}

func newServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		Driver:   cfg.DatabaseDriver,
		URL:      cfg.DatabaseURL,
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	h, err := app.Build(ctx, cfg, db)
	require.NoError(t, err)

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return server
}

// uniqueName keeps usernames and emails distinct across runs that share a
// PostgreSQL database.
func uniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

type session struct {
	UserID       int64
	AccessToken  string
	RefreshToken string
}

func registerAndLogin(t *testing.T, server *httptest.Server, bearer string, role string) session {
	t.Helper()

	username := uniqueName("user")
	resp := doJSON(t, http.MethodPost, server.URL+"/auth/register", bearer, map[string]any{
		"username":  username,
		"password":  "Password123!",
		"email":     username + "@example.com",
		"role_name": role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var registered struct {
		UserID int64 `json:"userId"`
	}
	decode(t, resp, &registered)

	s := login(t, server, username, "Password123!")
	s.UserID = registered.UserID
	return s
}

func login(t *testing.T, server *httptest.Server, username string, password string) session {
	t.Helper()

	resp := doJSON(t, http.MethodPost, server.URL+"/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Success      bool   `json:"success"`
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
		User         struct {
			UserID int64 `json:"user_id"`
		} `json:"user"`
	}
	decode(t, resp, &parsed)
	require.True(t, parsed.Success)
	require.NotEmpty(t, parsed.Token)
	require.NotEmpty(t, parsed.RefreshToken)

	return session{UserID: parsed.User.UserID, AccessToken: parsed.Token, RefreshToken: parsed.RefreshToken}
}

func doJSON(t *testing.T, method string, url string, bearer string, body any) *http.Response {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}
