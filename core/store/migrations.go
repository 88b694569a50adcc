package store

import (
	"context"
	"fmt"

	"sokol-alert/core/utils"
)

var migrationsSQLite = []string{
	`CREATE TABLE IF NOT EXISTS subscribers (
		user_id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		is_member INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS operators (
		user_id INTEGER PRIMARY KEY,
		granted_by INTEGER NOT NULL DEFAULT 0,
		granted_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		description TEXT NOT NULL,
		place TEXT NOT NULL DEFAULT '',
		photo_file_id TEXT NOT NULL DEFAULT '',
		summary_chat_id INTEGER,
		summary_message_id INTEGER,
		created_by INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS responses (
		incident_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		lat REAL,
		lon REAL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (incident_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		broadcast_id TEXT NOT NULL,
		incident_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_responses_incident ON responses(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_incident ON deliveries(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);`,
}

var migrationsPostgres = []string{
	`CREATE TABLE IF NOT EXISTS subscribers (
		user_id BIGINT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		is_member SMALLINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS operators (
		user_id BIGINT PRIMARY KEY,
		granted_by BIGINT NOT NULL DEFAULT 0,
		granted_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id BIGSERIAL PRIMARY KEY,
		description TEXT NOT NULL,
		place TEXT NOT NULL DEFAULT '',
		photo_file_id TEXT NOT NULL DEFAULT '',
		summary_chat_id BIGINT,
		summary_message_id BIGINT,
		created_by BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS responses (
		incident_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (incident_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id BIGSERIAL PRIMARY KEY,
		broadcast_id TEXT NOT NULL,
		incident_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_responses_incident ON responses(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_incident ON deliveries(incident_id);`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);`,
}

func ApplyMigrations(ctx context.Context, db *DB, logger *utils.Logger) error {
	stmts := migrationsSQLite
	if db.Driver() == "postgres" {
		stmts = migrationsPostgres
	}
	for i, stmt := range stmts {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration #%d failed: %w", i+1, err)
		}
	}
	if logger != nil {
		logger.Printf("migrations applied (%s)", db.Driver())
	}
	return nil
}
