// Package database provides schema migrations for the Vigil database.
package database

import (
	"database/sql"

	"github.com/rs/zerolog/log"
)

// migrate runs all database migrations to create the schema.
// Creates tables for users and sessions.
func migrate(conn *sql.DB) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "create_users_table",
			sql: `
CREATE TABLE IF NOT EXISTS users (
    username TEXT PRIMARY KEY,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'viewer',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
			`,
		},
		{
			name: "create_sessions_table",
			sql: `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    role TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
			`,
		},
	}

	for _, migration := range migrations {
		log.Debug().Str("migration", migration.name).Msg("Running migration")
		if _, err := conn.Exec(migration.sql); err != nil {
			log.Error().Err(err).Str("migration", migration.name).Msg("Migration failed")
			return err
		}
	}

	return nil
}
