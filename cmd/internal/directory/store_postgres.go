package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads users from callboard.users.
//
// The table is owned by the CRUD application; this store only reads it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed directory store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// GetUser loads a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var u User

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, role, supervisor_id
		FROM callboard.users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.Role, &u.SupervisorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	return u, nil
}

// GetByUsername loads a user and password hash for sign-in.
func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (User, string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return User{}, "", ErrUserNotFound
	}

	var (
		u    User
		hash string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, username, role, supervisor_id, password_hash
		FROM callboard.users
		WHERE lower(username) = $1
	`, username).Scan(&u.ID, &u.Username, &u.Role, &u.SupervisorID, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, "", ErrUserNotFound
	}
	if err != nil {
		return User{}, "", err
	}

	return u, hash, nil
}
