package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nfcunha/vigil/core/models"
)

// UserRepository handles persistence of credential rows.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByUsername retrieves a user by name.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT username, password_hash, role, created_at
		FROM users
		WHERE username = ?
	`

	u := &models.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.Username,
		&u.PasswordHash,
		&u.Role,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// Upsert creates the user or replaces its hash and role.
func (r *UserRepository) Upsert(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, password_hash, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password_hash = excluded.password_hash,
			role = excluded.role
	`

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, query, u.Username, u.PasswordHash, u.Role, u.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}
	return nil
}
