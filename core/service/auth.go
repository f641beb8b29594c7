// Package service provides business logic for telemetry, sessions and workload control.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nfcunha/vigil/core/metrics"
	"nfcunha/vigil/core/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionStore is the external session store. Get must report a missing or
// expired session as an error.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Set(ctx context.Context, s *models.Session, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

// CredentialVerifier checks a username/password pair against the credential store.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (*models.User, error)
}

// AuthService is the session gateway. It never mutates a session's identity.
type AuthService struct {
	store         SessionStore
	verifier      CredentialVerifier
	metrics       *metrics.Metrics
	ttl           time.Duration
	lookupTimeout time.Duration
	now           func() time.Time
}

// NewAuthService creates a new session gateway.
func NewAuthService(store SessionStore, verifier CredentialVerifier, m *metrics.Metrics, ttl, lookupTimeout time.Duration) *AuthService {
	return &AuthService{
		store:         store,
		verifier:      verifier,
		metrics:       m,
		ttl:           ttl,
		lookupTimeout: lookupTimeout,
		now:           time.Now,
	}
}

// Authenticate resolves a session id. Every failure, including a lookup
// timeout, yields ErrUnauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (*models.Session, error) {
	if sessionID == "" {
		return nil, ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	session, err := s.store.Get(ctx, sessionID)
	if err != nil || session == nil {
		if err != nil && ctx.Err() != nil {
			log.Warn().Err(err).Msg("Session lookup timed out")
		}
		s.metrics.AuthFailures.Inc()
		return nil, ErrUnauthenticated
	}
	if session.ID != sessionID || session.Expired(s.now()) {
		s.metrics.AuthFailures.Inc()
		return nil, ErrUnauthenticated
	}
	return session, nil
}

// Login verifies credentials and creates a new session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.Session, error) {
	if username == "" || password == "" {
		s.metrics.AuthFailures.Inc()
		return nil, ErrInvalidCredentials
	}

	user, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			log.Error().Err(err).Msg("Credential verification failed")
		}
		s.metrics.AuthFailures.Inc()
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	session := &models.Session{
		ID:        uuid.NewString(),
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Set(ctx, session, s.ttl); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().Str("user", user.Username).Msg("User logged in")
	return session, nil
}

// Logout destroys a session. Unknown sessions are ignored.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.Destroy(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

// TTL returns the configured session lifetime.
func (s *AuthService) TTL() time.Duration {
	return s.ttl
}
