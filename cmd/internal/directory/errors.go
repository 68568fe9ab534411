package directory

import "errors"

var (
	// ErrUserNotFound is returned when a user ID or username resolves to nothing.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidHash is returned for malformed or unsupported password hashes.
	ErrInvalidHash = errors.New("invalid argon2id hash format")
)
