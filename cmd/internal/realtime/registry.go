package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Registry owns the set of live connections.
//
// Concurrency guarantees:
// - Register/Unregister are safe under concurrent fanout.
// - Unregister is idempotent and signals the connection's goroutines.
// - Fanout over Snapshot never blocks (offer drops under backpressure).
type Registry struct {
	log     *slog.Logger
	metrics *Metrics

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry constructs a Registry. metrics may be nil.
func NewRegistry(log *slog.Logger, metrics *Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log,
		metrics: metrics,
		conns:   make(map[string]*Conn),
	}
}

// Register adds a connection.
func (r *Registry) Register(c *Conn) {
	if r == nil || c == nil || c.ID == "" {
		return
	}

	r.mu.Lock()
	_, existed := r.conns[c.ID]
	r.conns[c.ID] = c
	r.mu.Unlock()

	if !existed {
		r.metrics.connOpened()
	}
	r.log.Info("realtime.conn.register", "conn_id", c.ID, "user_id", c.UserID, "role", c.Role)
}

// Unregister removes a connection and signals its shutdown (idempotent).
// Removal happens before Close so no broadcaster picks up a closing conn
// from a fresh snapshot.
func (r *Registry) Unregister(connID string) {
	if r == nil || connID == "" {
		return
	}

	r.mu.Lock()
	c, ok := r.conns[connID]
	delete(r.conns, connID)
	r.mu.Unlock()

	if !ok {
		return
	}

	c.Close()
	r.metrics.connClosed()
	r.log.Info("realtime.conn.unregister", "conn_id", connID, "user_id", c.UserID)
}

// Touch refreshes liveness for a connection, if it is still registered.
func (r *Registry) Touch(connID string, now time.Time) {
	if r == nil || connID == "" {
		return
	}

	r.mu.RLock()
	c := r.conns[connID]
	r.mu.RUnlock()

	c.Touch(now)
}

// Snapshot returns the current connections. The slice is private to the
// caller; the *Conn values are shared live handles.
func (r *Registry) Snapshot() []*Conn {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len reports the number of registered connections.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
