package presence

import (
	"context"
	"errors"
	"sync"
	"time"
)

const memMaxHistoryPerUser = 10_000

// MemoryStore is an in-memory Store for dev mode and tests.
//
// One mutex guards both maps so the presence upsert and its history entry
// stay atomic, mirroring the transactional Postgres implementation.
type MemoryStore struct {
	mu      sync.Mutex
	rows    map[string]AgentPresence
	history map[string][]HistoryEntry // append order; newest last
}

// NewMemoryStore constructs an in-memory presence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[string]AgentPresence),
		history: make(map[string][]HistoryEntry),
	}
}

// Get loads the current presence row for userID.
func (s *MemoryStore) Get(ctx context.Context, userID string) (AgentPresence, error) {
	if err := ctx.Err(); err != nil {
		return AgentPresence{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[userID]
	if !ok {
		return AgentPresence{}, ErrPresenceNotFound
	}
	return row, nil
}

// Apply performs the compare-on-write upsert plus history append.
func (s *MemoryStore) Apply(ctx context.Context, in ApplyInput) (AgentPresence, bool, error) {
	if in.UserID == "" {
		return AgentPresence{}, false, errors.New("presence: missing user id")
	}
	if err := ctx.Err(); err != nil {
		return AgentPresence{}, false, err
	}

	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.rows[in.UserID]
	if exists && !at.After(current.LastActive) {
		// Superseded: a newer write already landed. No clobber, no history.
		return current, false, nil
	}

	next := AgentPresence{
		UserID:      in.UserID,
		Status:      in.Status,
		PauseReason: in.PauseReason,
		LastActive:  at,
		Version:     current.Version + 1,
	}

	entryID, err := NewEntryID(at)
	if err != nil {
		return AgentPresence{}, false, err
	}

	s.rows[in.UserID] = next
	s.history[in.UserID] = append(s.history[in.UserID], HistoryEntry{
		ID:          entryID,
		UserID:      in.UserID,
		Status:      in.Status,
		PauseReason: in.PauseReason,
		At:          at,
	})

	// Bound memory to avoid unbounded growth in dev.
	if h := s.history[in.UserID]; len(h) > memMaxHistoryPerUser {
		s.history[in.UserID] = h[len(h)-memMaxHistoryPerUser:]
	}

	return next, true, nil
}

// History returns up to limit entries for userID, newest first.
func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[userID]
	out := make([]HistoryEntry, 0, limit)
	for i := len(h) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h[i])
	}
	return out, nil
}
