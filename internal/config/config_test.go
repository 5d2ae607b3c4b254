package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rbac-auth/internal/database"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/rbac")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, database.DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, "rbac-auth", cfg.JWTIssuer)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, "Operator", cfg.DefaultRole)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 20, cfg.AuthRateLimitRPM)
	assert.Equal(t, "pretty", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("BCRYPT_COST", "10")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, database.DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("RATE_LIMIT_RPM", "lots")
	t.Setenv("REQUEST_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.RateLimitRPM)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadTrustedProxies(t *testing.T) {
	setRequired(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7/24, 203.0.113.9, ::ffff:198.51.100.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.0/24"),
		netip.MustParsePrefix("203.0.113.9/32"),
		netip.MustParsePrefix("198.51.100.1/32"),
	}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,loadbalancer")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loadbalancer")
}

func TestLoadWithoutTrustedProxies(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TrustedProxies)
	assert.Empty(t, cfg.SeedAdminUsername)
	assert.Equal(t, "Admin", cfg.SeedAdminRole)
}

func TestLoadBootstrapAccount(t *testing.T) {
	setRequired(t)
	t.Setenv("SEED_ADMIN_USERNAME", "root")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("SEED_ADMIN_PASSWORD", "s3cret")
	t.Setenv("SEED_ADMIN_EMAIL", "root@example.com")
	t.Setenv("SEED_ADMIN_ROLE", "Owner")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "root", cfg.SeedAdminUsername)
	assert.Equal(t, "s3cret", cfg.SeedAdminPassword)
	assert.Equal(t, "Owner", cfg.SeedAdminRole)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ServerPort:       "8080",
			RequestTimeout:   time.Second,
			DatabaseDriver:   database.DriverSQLite,
			DatabaseURL:      ":memory:",
			DBMaxConns:       10,
			DBMinConns:       2,
			JWTSecret:        "s",
			JWTAccessTTL:     time.Minute,
			JWTRefreshTTL:    time.Hour,
			BcryptCost:       12,
			DefaultRole:      "Operator",
			RateLimitRPM:     100,
			AuthRateLimitRPM: 20,
			LogFormat:        "pretty",
		}
	}

	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"missing secret":        func(c *Config) { c.JWTSecret = " " },
		"missing database url":  func(c *Config) { c.DatabaseURL = "" },
		"bcrypt cost too low":   func(c *Config) { c.BcryptCost = 3 },
		"bcrypt cost too high":  func(c *Config) { c.BcryptCost = 32 },
		"refresh before access": func(c *Config) { c.JWTRefreshTTL = time.Second },
		"min above max conns":   func(c *Config) { c.DBMinConns = 11 },
		"empty default role":    func(c *Config) { c.DefaultRole = "" },
		"unknown log format":    func(c *Config) { c.LogFormat = "xml" },
		"zero timeout":          func(c *Config) { c.RequestTimeout = 0 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
