// Package postgres stores flow definitions and guardar_bd rows in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aretw0/flujos/internal/logging"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Open connects to databaseURL, pings it and applies pending migrations.
func Open(ctx context.Context, logger *slog.Logger, databaseURL string) (*sql.DB, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, logger, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.InfoContext(ctx, "PostgreSQL persistence initialized")
	return db, nil
}

// migrations are applied in ascending version order.
var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS flujos_flows (
			id             TEXT PRIMARY KEY,
			marca_id       TEXT NOT NULL DEFAULT '',
			estado         TEXT NOT NULL,
			canales        TEXT[] NOT NULL DEFAULT '{}',
			definicion     JSONB NOT NULL,
			version        INTEGER NOT NULL,
			creado_en      TIMESTAMPTZ NOT NULL,
			actualizado_en TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_flujos_flows_estado ON flujos_flows (estado);
	`,
	2: `
		CREATE TABLE IF NOT EXISTS flujos_registros (
			id              TEXT PRIMARY KEY,
			tabla           TEXT NOT NULL,
			campos          JSONB NOT NULL,
			instance_id     TEXT NOT NULL,
			idempotency_key TEXT NOT NULL UNIQUE,
			creado_en       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_flujos_registros_tabla ON flujos_registros (tabla);
	`,
}

// Migrate creates the schema_migrations table and applies every migration newer than
// the recorded version, each in its own transaction.
func Migrate(ctx context.Context, logger *slog.Logger, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to query current schema version: %w", err)
	}

	versions := make([]int, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, version := range versions {
		if version <= current {
			continue
		}
		logger.InfoContext(ctx, "Applying migration", "version", version)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
