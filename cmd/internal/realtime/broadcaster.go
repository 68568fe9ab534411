package realtime

import (
	"encoding/json"
	"log/slog"
	"time"

	"callboard/cmd/internal/directory"
	"callboard/cmd/internal/presence"
	v1 "callboard/shared/contracts/realtime/v1"
)

// Broadcaster fans events out to registered connections, applying
// per-event visibility:
//
//   - agent-status-update: the subject's own connections plus their
//     supervisor's connections. Other users never observe it.
//   - system-notification: every connection, or only connections of one
//     role when the payload names it.
//   - activity-log: every connection.
//
// Fanout is best-effort and never blocks: a full queue drops its oldest
// event to admit the new one (see Conn.offer).
type Broadcaster struct {
	log     *slog.Logger
	reg     *Registry
	metrics *Metrics
}

// NewBroadcaster constructs a Broadcaster. metrics may be nil.
func NewBroadcaster(log *slog.Logger, reg *Registry, metrics *Metrics) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{log: log, reg: reg, metrics: metrics}
}

// PresenceChanged implements presence.Publisher.
func (b *Broadcaster) PresenceChanged(row presence.AgentPresence, target directory.User) {
	p, err := json.Marshal(v1.AgentStatusUpdatePayload{
		UserID:      row.UserID,
		Status:      string(row.Status),
		PauseReason: string(row.PauseReason),
		LastUpdated: row.LastActive,
		Version:     row.Version,
	})
	if err != nil {
		b.log.Error("realtime.fanout.marshal", "type", v1.TypeAgentStatusUpdate, "err", err)
		return
	}

	env := b.newEnvelope(v1.TypeAgentStatusUpdate, p, row.LastActive)
	b.fanout(env, func(c *Conn) bool {
		return presenceVisible(c, target)
	})
}

// SystemNotification delivers an operational notice. An empty role means
// every connection; otherwise only connections of that role receive it.
func (b *Broadcaster) SystemNotification(title, message string, role directory.Role, now time.Time) {
	p, err := json.Marshal(v1.SystemNotificationPayload{
		Title:   title,
		Message: message,
		Role:    string(role),
	})
	if err != nil {
		b.log.Error("realtime.fanout.marshal", "type", v1.TypeSystemNotification, "err", err)
		return
	}

	env := b.newEnvelope(v1.TypeSystemNotification, p, now)
	b.fanout(env, func(c *Conn) bool {
		return role == "" || c.Role == role
	})
}

// ActivityLog mirrors an activity-feed entry to every connection.
func (b *Broadcaster) ActivityLog(actorID, action, detail string, now time.Time) {
	p, err := json.Marshal(v1.ActivityLogPayload{
		ActorID: actorID,
		Action:  action,
		Detail:  detail,
		At:      now,
	})
	if err != nil {
		b.log.Error("realtime.fanout.marshal", "type", v1.TypeActivityLog, "err", err)
		return
	}

	env := b.newEnvelope(v1.TypeActivityLog, p, now)
	b.fanout(env, func(*Conn) bool { return true })
}

// presenceVisible reports whether conn may observe a status change of
// subject: the subject themselves, or the supervisor the subject reports to.
func presenceVisible(c *Conn, subject directory.User) bool {
	if c.UserID == subject.ID {
		return true
	}
	return c.Role == directory.RoleSupervisor && subject.SupervisedBy(c.UserID)
}

func (b *Broadcaster) fanout(env v1.Envelope, visible func(*Conn) bool) {
	if b == nil || b.reg == nil {
		return
	}

	for _, c := range b.reg.Snapshot() {
		if c == nil || !visible(c) {
			continue
		}

		if c.offer(env) {
			b.metrics.eventSent(env.Type)
			continue
		}
		b.metrics.eventDropped(env.Type)
		b.log.Debug("realtime.fanout.drop", "type", env.Type, "conn_id", c.ID, "user_id", c.UserID)
	}
}

func (b *Broadcaster) newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	id, err := NewEnvelopeID(ts)
	if err != nil {
		id = NewRandomHex(10)
	}
	return v1.Envelope{
		V:         v1.Version,
		Type:      typ,
		ID:        id,
		Timestamp: ts.UTC(),
		Payload:   payload,
	}
}
