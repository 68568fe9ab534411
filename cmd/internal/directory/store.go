package directory

import "context"

// Store resolves users for authorization and sign-in.
type Store interface {
	// GetUser loads a user by ID. Returns ErrUserNotFound on miss.
	GetUser(ctx context.Context, userID string) (User, error)

	// GetByUsername loads a user and its password hash for sign-in.
	// Returns ErrUserNotFound on miss; the hash is never exposed elsewhere.
	GetByUsername(ctx context.Context, username string) (User, string, error)
}
