package presence

import (
	"context"
	"errors"
	"time"
)

// ErrPresenceNotFound is returned by Get for users with no presence row yet.
// Callers treat it as OFFLINE; the row is created lazily on first apply.
var ErrPresenceNotFound = errors.New("presence not found")

// ApplyInput describes one candidate presence write.
type ApplyInput struct {
	UserID      string
	Status      Status
	PauseReason PauseReason
	At          time.Time
}

// Store persists presence rows and their history log.
//
// Requirements:
//   - Apply is a compare-on-write: it commits only when At is strictly newer
//     than the stored LastActive, and reports the outcome.
//   - The presence upsert and the history append are one atomic unit; if
//     either fails, neither is visible.
//   - History returns entries newest-first.
type Store interface {
	// Get loads the current presence row for userID.
	Get(ctx context.Context, userID string) (AgentPresence, error)

	// Apply upserts the presence row and appends one history entry when the
	// input's timestamp wins the ordering guard. applied=false means the
	// write was superseded; the returned row is then the stored current
	// state, untouched.
	Apply(ctx context.Context, in ApplyInput) (row AgentPresence, applied bool, err error)

	// History returns up to limit audit entries for userID, newest first.
	History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
}
