package directory

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]User
	byName map[string]string // lowercase username -> id
	hashes map[string]string // id -> password hash
}

// NewMemoryStore constructs an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]User),
		byName: make(map[string]string),
		hashes: make(map[string]string),
	}
}

// Seed registers a user with an optional password hash.
func (s *MemoryStore) Seed(u User, passwordHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[u.ID] = u
	if u.Username != "" {
		s.byName[strings.ToLower(u.Username)] = u.ID
	}
	if passwordHash != "" {
		s.hashes[u.ID] = passwordHash
	}
}

// GetUser loads a user by ID.
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// GetByUsername loads a user and password hash for sign-in.
func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (User, string, error) {
	if err := ctx.Err(); err != nil {
		return User{}, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return User{}, "", ErrUserNotFound
	}
	return s.byID[id], s.hashes[id], nil
}
