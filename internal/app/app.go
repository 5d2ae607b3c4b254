package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rbac-auth/internal/config"
	"rbac-auth/internal/database"
	"rbac-auth/internal/handler"
	"rbac-auth/internal/metrics"
	"rbac-auth/internal/middleware"
	"rbac-auth/internal/password"
	"rbac-auth/internal/repository"
	"rbac-auth/internal/router"
	"rbac-auth/internal/seed"
	"rbac-auth/internal/service"
	"rbac-auth/internal/token"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	slog.Info("connecting to database", "driver", cfg.DatabaseDriver)
	db, err := database.Open(ctx, database.Options{
		Driver:   cfg.DatabaseDriver,
		URL:      cfg.DatabaseURL,
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	appHandler, err := Build(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appHandler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			func() {
				db.Close()
			},
		},
	}, nil
}

// Build seeds the catalogue and wires stores, hasher, issuer and service into
// the HTTP handler. The database must already be migrated.
func Build(ctx context.Context, cfg *config.Config, db *database.DB) (http.Handler, error) {
	users := repository.NewUserRepository(db)
	roles := repository.NewRoleRepository(db)
	permissions := repository.NewPermissionRepository(db)
	departments := repository.NewDepartmentRepository(db)

	if err := applySeed(ctx, cfg, seed.Stores{
		Roles:       roles,
		Permissions: permissions,
		Departments: departments,
	}); err != nil {
		return nil, err
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, token.WithIssuerName(cfg.JWTIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	m := metrics.New()

	authService, err := service.NewAuthService(
		users,
		roles,
		departments,
		password.NewHasher(cfg.BcryptCost),
		issuer,
		service.WithDefaultRole(cfg.DefaultRole),
		service.WithRecorder(m),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	if err := ensureAdmin(ctx, cfg, authService); err != nil {
		return nil, err
	}

	authMiddleware := middleware.NewAuthMiddleware(authService)

	return router.New(cfg, authMiddleware, m, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		User:   handler.NewUserHandler(authService),
		Health: handler.NewHealthHandler(db),
	}), nil
}

func applySeed(ctx context.Context, cfg *config.Config, stores seed.Stores) error {
	cat, err := seed.Load(cfg.SeedFile)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("seed file not found, skipping catalogue", "path", cfg.SeedFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load seed catalogue: %w", err)
	}

	if !cat.HasRole(cfg.DefaultRole) {
		slog.Warn("default role is not declared in seed catalogue", "role", cfg.DefaultRole, "path", cfg.SeedFile)
	}

	if _, err := seed.Apply(ctx, cat, stores); err != nil {
		return fmt.Errorf("failed to apply seed catalogue: %w", err)
	}

	return nil
}

// ensureAdmin creates the bootstrap account named by SEED_ADMIN_USERNAME. Self
// registration only grants the default role, so this is how the first
// MANAGE_USERS holder comes to exist.
func ensureAdmin(ctx context.Context, cfg *config.Config, auth *service.AuthService) error {
	if cfg.SeedAdminUsername == "" {
		return nil
	}

	created, err := auth.EnsureAccount(ctx, service.RegisterInput{
		Username: cfg.SeedAdminUsername,
		Password: cfg.SeedAdminPassword,
		Email:    cfg.SeedAdminEmail,
		RoleName: cfg.SeedAdminRole,
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap account: %w", err)
	}

	if created {
		slog.Warn("bootstrap account created, rotate its password", "username", cfg.SeedAdminUsername, "role", cfg.SeedAdminRole)
	} else {
		slog.Info("bootstrap account already exists", "username", cfg.SeedAdminUsername)
	}

	return nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
