package service

import "errors"

// Boundary errors. Component internals are translated into one of these
// before leaving a service's public contract.
var (
	// ErrUnauthenticated is returned for any session that cannot be proven valid.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredentials is the uniform login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidAction is returned for a lifecycle action outside start/stop/restart.
	ErrInvalidAction = errors.New("invalid action")

	// ErrCollectionFailed is returned when no host metric source could be read.
	ErrCollectionFailed = errors.New("telemetry collection failed")

	// ErrFeatureDisabled is returned when an optional capability is switched off.
	ErrFeatureDisabled = errors.New("feature disabled")
)
