package session

import "errors"

var (
	// ErrInvalidToken is returned when a presented token is structurally unusable.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when a token hash does not match any session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrStoreUnavailable wraps transient persistence failures.
	// Manager.Validate never surfaces it; write paths do.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
