package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"callboard/cmd/internal/directory"
)

// Manager implements the high-level session operations for Callboard.
//
// It issues opaque tokens, validates them with sliding-expiry renewal, and
// supports per-session and per-user invalidation. Validation is the hot path
// guarding every protected action: it never returns an error, only a
// "no session" result, so a store outage degrades to re-authentication
// instead of failing requests outright.
type Manager struct {
	cfg   Config
	store Store
	users directory.Store
	log   *slog.Logger
}

// Identity is the result of a successful validation: the session row plus
// the directory view of its owner.
type Identity struct {
	Session Record
	User    directory.User
}

// NewManager constructs a Manager with the provided configuration and stores.
func NewManager(cfg Config, store Store, users directory.Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, store: store, users: users, log: log}
}

// IssueToken generates a fresh opaque session token (160 bits, lowercase
// base32, no padding). The raw token exists only in the caller's hands and
// in the client cookie; the store sees its hash.
func (m *Manager) IssueToken() (string, error) {
	plain, _, err := newOpaqueToken(m.cfg.TokenBytes)
	return plain, err
}

// CreateSession persists a session for token owned by userID and returns it.
func (m *Manager) CreateSession(ctx context.Context, now time.Time, tokenPlain, userID string) (Record, error) {
	rec := Record{
		ID:        hashTokenHex(tokenPlain),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Validate resolves a presented token to an Identity.
//
// Any failure (blank token, lookup miss, expiry, store outage) collapses to
// ok=false; failures other than a plain miss are logged. Expired sessions
// are deleted fire-and-forget. When less than the renewal window remains,
// the expiry slides to now+TTL as part of this call; the renewal write is
// idempotent, so concurrent validations of the same token converge.
func (m *Manager) Validate(ctx context.Context, now time.Time, tokenPlain string) (Identity, bool) {
	tokenPlain = strings.TrimSpace(tokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if tokenPlain == "" || len(tokenPlain) > 4096 {
		return Identity{}, false
	}

	id := hashTokenHex(tokenPlain)

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		if err != ErrSessionNotFound {
			m.log.Error("session.validate.store_fail", "err", err)
		}
		return Identity{}, false
	}

	if !rec.ExpiresAt.After(now) {
		m.deleteQuiet(ctx, rec.ID)
		return Identity{}, false
	}

	if rec.ExpiresAt.Sub(now) < m.cfg.RenewWithin {
		renewed := now.Add(m.cfg.TTL)
		if err := m.store.SetExpiry(ctx, rec.ID, renewed); err != nil {
			m.log.Error("session.renew.store_fail", "err", err)
			return Identity{}, false
		}
		rec.ExpiresAt = renewed
	}

	user, err := m.users.GetUser(ctx, rec.UserID)
	if err != nil {
		// A session pointing at a deleted user is dead weight; drop it.
		if err == directory.ErrUserNotFound {
			m.deleteQuiet(ctx, rec.ID)
		} else {
			m.log.Error("session.validate.user_fail", "err", err, "user_id", rec.UserID)
		}
		return Identity{}, false
	}

	return Identity{Session: rec, User: user}, true
}

// Invalidate deletes a single session by ID (idempotent).
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

// InvalidateAll deletes every session for a user (logout everywhere, idempotent).
func (m *Manager) InvalidateAll(ctx context.Context, userID string) error {
	return m.store.DeleteAllForUser(ctx, userID)
}

// deleteQuiet removes an expired or orphaned session without affecting the
// validation result. A second validation of the same token also reports
// "no session", so cleanup failure is harmless.
func (m *Manager) deleteQuiet(ctx context.Context, sessionID string) {
	if err := m.store.Delete(ctx, sessionID); err != nil {
		m.log.Warn("session.cleanup.fail", "err", err)
	}
}
