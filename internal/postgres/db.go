package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrateLockKey serializes Migrate across processes starting together.
const migrateLockKey = 0x63686174 // "chat"

const (
	qCreateMigrations = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	qMigrateLock      = `SELECT pg_advisory_xact_lock($1)`
	qMigrationApplied = `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`
	qRecordMigration  = `INSERT INTO schema_migrations (version) VALUES ($1)`
)

// DB owns the connection pool shared by the repositories.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens the pool described by the postgres config section and checks
// that the server answers.
func New(ctx context.Context, cfg config.Postgres) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.ApplicationName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	db := &DB{Pool: pool}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// Ping backs the "postgres" gRPC health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies every *.sql file of fsys not yet recorded in
// schema_migrations, in name order, each in its own transaction. It returns
// how many files were applied.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return 0, err
	}
	sort.Strings(names)

	if _, err := db.Pool.Exec(ctx, qCreateMigrations); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		sql, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, err
		}

		done, err := db.applyOne(ctx, version, string(sql))
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", version, err)
		}
		if done {
			applied++
			slog.Info("postgres migration applied", "version", version)
		}
	}
	return applied, nil
}

func (db *DB) applyOne(ctx context.Context, version, sql string) (bool, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, qMigrateLock, migrateLockKey); err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(ctx, qMigrationApplied, version).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	// simple protocol: one file may hold several statements
	if _, err := tx.Exec(ctx, sql, pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, qRecordMigration, version); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
