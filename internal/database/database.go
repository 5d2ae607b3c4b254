package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func ParseDriver(value string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(value))) {
	case DriverPostgres, "postgresql", "pgx":
		return DriverPostgres, nil
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", value)
	}
}

type Options struct {
	Driver   Driver
	URL      string
	MaxConns int32
	MinConns int32
}

// DB wraps a database/sql handle together with the dialect it speaks.
// Queries are written with PostgreSQL $N placeholders and passed through Rebind.
type DB struct {
	*sql.DB

	driver Driver
	pool   *pgxpool.Pool
}

func Open(ctx context.Context, opts Options) (*DB, error) {
	switch opts.Driver {
	case DriverPostgres:
		return openPostgres(ctx, opts)
	case DriverSQLite:
		return openSQLite(ctx, opts.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func openPostgres(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connected", "driver", DriverPostgres, "max_conns", cfg.MaxConns, "min_conns", cfg.MinConns)
	return &DB{DB: stdlib.OpenDBFromPool(pool), driver: DriverPostgres, pool: pool}, nil
}

// OpenSQLite opens a SQLite database by path or DSN. ":memory:" yields a
// private in-memory database, which is what the repository tests use.
func OpenSQLite(ctx context.Context, dsn string) (*DB, error) {
	return openSQLite(ctx, dsn)
}

func openSQLite(ctx context.Context, dsn string) (*DB, error) {
	dsn = strings.TrimPrefix(strings.TrimSpace(dsn), "sqlite://")
	if dsn == "" {
		return nil, fmt.Errorf("sqlite DSN is required")
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite has a single writer; one connection also keeps ":memory:" alive.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	slog.Info("database connected", "driver", DriverSQLite)
	return &DB{DB: sqlDB, driver: DriverSQLite}, nil
}

func (db *DB) Driver() Driver {
	return db.driver
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Rebind converts $N placeholders to SQLite's numbered ?N form, so a
// placeholder may be repeated or appear out of order.
func (db *DB) Rebind(query string) string {
	if db.driver == DriverPostgres {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?${1}")
}

func (db *DB) Close() {
	if db.DB != nil {
		_ = db.DB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}
