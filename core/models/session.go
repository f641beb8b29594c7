// Package models defines domain models for Vigil.
package models

import "time"

// Session is an authenticated principal's session. A session is either fully
// valid (present and unexpired) or treated as absent.
type Session struct {
	ID        string    `json:"-"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// User is a row of the credential store. The hash format is owned by the
// credential verifier.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoleAdmin is the role given to bootstrap users.
const RoleAdmin = "admin"
