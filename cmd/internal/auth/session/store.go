package session

import (
	"context"
	"time"
)

// Record mirrors the callboard.sessions row used by the session subsystem.
type Record struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store abstracts persistence for session state.
//
// Implementations must treat the row as an atomic unit: SetExpiry is an
// idempotent single-row update (duplicate sliding renewals converge on the
// same target expiry), and deletes of absent rows are not an error.
type Store interface {
	// Put inserts a new session row.
	Put(ctx context.Context, rec Record) error

	// Get loads a session row by ID. Returns ErrSessionNotFound on miss.
	Get(ctx context.Context, sessionID string) (Record, error)

	// SetExpiry updates the expiry for a session (sliding renewal).
	SetExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error

	// Delete removes a single session (idempotent).
	Delete(ctx context.Context, sessionID string) error

	// DeleteAllForUser removes every session owned by userID (idempotent).
	DeleteAllForUser(ctx context.Context, userID string) error
}
