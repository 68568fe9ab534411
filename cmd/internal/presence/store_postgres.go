package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a presence Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
//
// Concurrency model:
//   - Uses a per-user transactional advisory lock so the read-compare-write in
//     Apply is serialized per user without table locks. Writes for different
//     users run fully in parallel.
//   - The presence upsert and the history insert commit in one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed presence store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("presence: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Get loads the current presence row for userID.
func (s *PostgresStore) Get(ctx context.Context, userID string) (AgentPresence, error) {
	var (
		row    AgentPresence
		reason *string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT user_id, status, pause_reason, last_active, version
		FROM callboard.agent_presence
		WHERE user_id = $1
	`, userID).Scan(&row.UserID, &row.Status, &reason, &row.LastActive, &row.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return AgentPresence{}, ErrPresenceNotFound
	}
	if err != nil {
		return AgentPresence{}, err
	}

	if reason != nil {
		row.PauseReason = PauseReason(*reason)
	}
	return row, nil
}

// Apply performs the compare-on-write upsert plus history append in one
// transaction.
func (s *PostgresStore) Apply(ctx context.Context, in ApplyInput) (AgentPresence, bool, error) {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return AgentPresence{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize the read-compare-write per user. hashtextextended reduces
	// collision risk vs hashtext (still a hash, but better).
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, in.UserID); err != nil {
		return AgentPresence{}, false, fmt.Errorf("advisory lock: %w", err)
	}

	var (
		current       AgentPresence
		currentReason *string
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, status, pause_reason, last_active, version
		FROM callboard.agent_presence
		WHERE user_id = $1
	`, in.UserID).Scan(&current.UserID, &current.Status, &currentReason, &current.LastActive, &current.Version)

	exists := true
	if errors.Is(err, pgx.ErrNoRows) {
		exists = false
	} else if err != nil {
		return AgentPresence{}, false, err
	}
	if currentReason != nil {
		current.PauseReason = PauseReason(*currentReason)
	}

	if exists && !at.After(current.LastActive) {
		// Superseded: report the stored state untouched.
		if err := tx.Commit(ctx); err != nil {
			return AgentPresence{}, false, err
		}
		return current, false, nil
	}

	next := AgentPresence{
		UserID:      in.UserID,
		Status:      in.Status,
		PauseReason: in.PauseReason,
		LastActive:  at,
		Version:     current.Version + 1,
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO callboard.agent_presence (user_id, status, pause_reason, last_active, version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status,
		    pause_reason = EXCLUDED.pause_reason,
		    last_active = EXCLUDED.last_active,
		    version = EXCLUDED.version
	`, next.UserID, string(next.Status), nullIfBlank(string(next.PauseReason)), next.LastActive, next.Version); err != nil {
		return AgentPresence{}, false, fmt.Errorf("upsert presence: %w", err)
	}

	entryID, err := NewEntryID(at)
	if err != nil {
		return AgentPresence{}, false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO callboard.presence_history (id, user_id, status, pause_reason, at)
		VALUES ($1, $2, $3, $4, $5)
	`, entryID, next.UserID, string(next.Status), nullIfBlank(string(next.PauseReason)), at); err != nil {
		return AgentPresence{}, false, fmt.Errorf("append history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return AgentPresence{}, false, err
	}
	return next, true, nil
}

// History returns up to limit entries for userID, newest first.
func (s *PostgresStore) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, status, pause_reason, at
		FROM callboard.presence_history
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e      HistoryEntry
			reason *string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Status, &reason, &e.At); err != nil {
			return nil, err
		}
		if reason != nil {
			e.PauseReason = PauseReason(*reason)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func nullIfBlank(s string) any {
	if s == "" {
		return nil
	}
	return s
}
