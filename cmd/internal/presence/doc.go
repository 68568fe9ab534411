// Package presence implements the agent-presence state machine.
//
// Each user owns exactly one presence row (ONLINE, PAUSED with a reason, or
// OFFLINE) plus an append-only history log. Transitions are linearized per
// user by timestamp, not by arrival order: the store applies a write only if
// its timestamp is strictly newer than the stored one, so a slow concurrent
// writer loses without clobbering (compare-on-write, no external locking).
//
// The presence upsert and its history entry commit as one atomic unit.
package presence
