package service

import (
	"context"
	"errors"
	"fmt"

	"nfcunha/vigil/core/models"
	"nfcunha/vigil/core/repository"

	"golang.org/x/crypto/bcrypt"
)

// UserStore is the credential store consulted by BcryptVerifier.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Upsert(ctx context.Context, u *models.User) error
}

// BcryptVerifier verifies bcrypt password hashes held in a UserStore.
type BcryptVerifier struct {
	users     UserStore
	dummyHash []byte
}

// NewBcryptVerifier creates a verifier backed by users.
func NewBcryptVerifier(users UserStore) *BcryptVerifier {
	// Unknown users are compared against this hash so both failure paths cost one comparison.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("vigil-unknown-user"), bcrypt.DefaultCost)
	return &BcryptVerifier{users: users, dummyHash: dummy}
}

// Verify returns the user when the password matches, ErrInvalidCredentials otherwise.
func (v *BcryptVerifier) Verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// EnsureUser hashes password and stores the user, replacing any existing hash.
func (v *BcryptVerifier) EnsureUser(ctx context.Context, username, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return v.users.Upsert(ctx, &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	})
}
