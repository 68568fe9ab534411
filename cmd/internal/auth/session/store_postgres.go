package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (callboard.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put inserts a new session row.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO callboard.sessions (id, user_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.UserID, rec.CreatedAt, rec.ExpiresAt)
	return err
}

// Get loads a session row by ID.
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (Record, error) {
	var rec Record

	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, created_at, expires_at
		FROM callboard.sessions
		WHERE id = $1
	`, sessionID).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// SetExpiry updates the expiry for a session. Renewal is idempotent: every
// concurrent renewal inside the same validation window writes the same target,
// so a plain single-row UPDATE is enough (no locking).
func (s *PostgresStore) SetExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE callboard.sessions
		SET expires_at = $2
		WHERE id = $1
	`, sessionID, expiresAt)
	return err
}

// Delete removes a single session (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM callboard.sessions
		WHERE id = $1
	`, sessionID)
	return err
}

// DeleteAllForUser removes every session owned by userID (idempotent).
func (s *PostgresStore) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM callboard.sessions
		WHERE user_id = $1
	`, userID)
	return err
}
