package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"callboard/cmd/internal/directory"
	v1 "callboard/shared/contracts/realtime/v1"
)

// Conn represents one live client channel (one open browser tab).
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent broadcasters.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Conn struct {
	ID           string
	UserID       string
	Role         directory.Role
	SupervisorID *string
	OpenedAt     time.Time

	Send chan v1.Envelope

	lastSeen  atomic.Int64 // unix nanos
	done      chan struct{}
	closeOnce sync.Once
}

// NewConn constructs a Conn with a bounded send queue.
func NewConn(id string, user directory.User, openedAt time.Time, sendQueueSize int) *Conn {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}

	c := &Conn{
		ID:           id,
		UserID:       user.ID,
		Role:         user.Role,
		SupervisorID: user.SupervisorID,
		OpenedAt:     openedAt,
		Send:         make(chan v1.Envelope, sendQueueSize),
		done:         make(chan struct{}),
	}
	c.lastSeen.Store(openedAt.UnixNano())
	return c
}

// Touch records liveness (handshake, keepalive, or any successful read).
func (c *Conn) Touch(now time.Time) {
	if c == nil {
		return
	}
	c.lastSeen.Store(now.UnixNano())
}

// LastSeen returns the most recent liveness timestamp.
func (c *Conn) LastSeen() time.Time {
	if c == nil {
		return time.Time{}
	}
	return time.Unix(0, c.lastSeen.Load()).UTC()
}

// Done returns a channel that is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the connection goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (c *Conn) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// offer enqueues env without ever blocking. When the queue is full the
// oldest queued envelope is dropped to make room: a backlogged consumer
// misses old events rather than stalling the publisher or growing the
// queue. Reports whether env itself was queued.
func (c *Conn) offer(env v1.Envelope) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	// Bounded attempts: another goroutine may win the race for a freed
	// slot, but we never spin indefinitely. Losing means env is dropped,
	// which at-most-once delivery permits.
	for i := 0; i <= cap(c.Send); i++ {
		select {
		case c.Send <- env:
			return true
		default:
		}

		// Full: evict the head and retry.
		select {
		case <-c.Send:
		default:
		}
	}
	return false
}
