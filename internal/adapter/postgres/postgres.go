package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	schemaVersionTable = "public.livechat_schema_version"
	schemaLockKey      = "livechat.schema"
	unlockTimeout      = 5 * time.Second
)

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("Database connected",
		"host", cfg.ConnConfig.Host,
		"transport", transportSecurity(cfg),
		"max_conns", cfg.MaxConns)
	return pool, nil
}

// transportSecurity describes the TLS negotiation implied by sslmode.
func transportSecurity(cfg *pgxpool.Config) string {
	if cfg.ConnConfig.TLSConfig == nil {
		return "plaintext"
	}
	for _, fb := range cfg.ConnConfig.Fallbacks {
		if fb.TLSConfig == nil {
			return "tls-preferred"
		}
	}
	return "tls"
}

// Migrate brings the schema to the latest embedded version. Instances booting
// together serialize on a session-level advisory lock.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return pool.AcquireFunc(ctx, func(c *pgxpool.Conn) error {
		return withAdvisoryLock(ctx, c.Conn(), schemaLockKey, func() error {
			return applySchema(ctx, c.Conn())
		})
	})
}

func applySchema(ctx context.Context, conn *pgx.Conn) error {
	files, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewMigrator(ctx, conn, schemaVersionTable)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := m.LoadMigrations(files); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	from, _ := m.GetCurrentVersion(ctx)
	if err := m.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate from version %d: %w", from, err)
	}

	slog.Info("Schema up to date", "from_version", from, "to_version", len(m.Migrations))
	return nil
}

// withAdvisoryLock runs fn while conn holds the advisory lock for key. The
// unlock survives cancellation of ctx.
func withAdvisoryLock(ctx context.Context, conn *pgx.Conn, key string, fn func() error) error {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", key); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock(hashtext($1))", key); err != nil {
			slog.Warn("Advisory unlock failed", "key", key, "error", err)
		}
	}()
	return fn()
}
