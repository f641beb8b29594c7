// Package database provides database initialization and connection management.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var db *sql.DB

// Initialize opens the process-wide SQLite connection and runs migrations.
// The database path is provided as a parameter from the configuration.
func Initialize(dbPath string) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	db = conn
	return nil
}

// Open opens a SQLite database at dbPath and brings its schema up to date.
// Use ":memory:" for a throwaway database in tests.
func Open(dbPath string) (*sql.DB, error) {
	log.Info().Str("path", dbPath).Msg("Initializing database")

	conn, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent session writes and
	// keeps every ":memory:" query on the same database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database initialized successfully")
	return conn, nil
}

// GetDB returns the active database connection.
// Initialize() must be called before using this function.
func GetDB() *sql.DB {
	return db
}

// Close closes the database connection.
// This should be called during application shutdown.
func Close() error {
	if db != nil {
		log.Info().Msg("Closing database connection")
		return db.Close()
	}
	return nil
}
