// Package repository provides the SQLite-backed data access layer.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nfcunha/vigil/core/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// SessionRepository stores sessions keyed by their opaque id.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Get returns the session with the given id. Expired rows are reported as
// ErrNotFound so callers never see a partially valid session.
func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, username, role, created_at, expires_at
		FROM sessions
		WHERE id = ?
	`

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.Username,
		&s.Role,
		&s.CreatedAt,
		&s.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if s.Expired(r.now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Set stores a session. The row expires ttl after the session was created.
func (r *SessionRepository) Set(ctx context.Context, s *models.Session, ttl time.Duration) error {
	query := `
		INSERT INTO sessions (id, username, role, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			role = excluded.role,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	expiresAt := s.CreatedAt.Add(ttl)
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.Username, s.Role, s.CreatedAt.UTC(), expiresAt.UTC()); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	s.ExpiresAt = expiresAt
	return nil
}

// Destroy removes a session. Destroying a missing session is not an error.
func (r *SessionRepository) Destroy(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// DeleteExpired removes every session past its expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, r.now().UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
