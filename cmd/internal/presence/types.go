package presence

import "time"

// AgentPresence is the current presence row for one user.
//
// Version only increases. A write carrying a timestamp not strictly newer
// than LastActive is rejected by the store (last-writer-by-time wins, not
// last-writer-by-arrival).
type AgentPresence struct {
	UserID      string
	Status      Status
	PauseReason PauseReason // set iff Status == StatusPaused
	LastActive  time.Time
	Version     int64
}

// HistoryEntry is one immutable audit record, appended per applied
// transition (no-op same-state reapplications included). Entries are
// appended in apply order, which can trail timestamp order for
// rejected-then-retried sequences; history is an audit log, not
// authoritative current state.
type HistoryEntry struct {
	ID          string // ULID, sortable by apply time
	UserID      string
	Status      Status
	PauseReason PauseReason
	At          time.Time
}
