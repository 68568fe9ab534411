package realtime

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically unregisters connections whose liveness timestamp
// fell outside the window. Keepalives and reads refresh liveness; a
// client that goes silent is dropped by the next sweep.
type Reaper struct {
	log      *slog.Logger
	reg      *Registry
	metrics  *Metrics
	interval time.Duration
	window   time.Duration
}

// NewReaper constructs a Reaper with defaults for non-positive inputs.
func NewReaper(log *slog.Logger, reg *Registry, metrics *Metrics, interval, window time.Duration) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = reaperInterval
	}
	if window <= 0 {
		window = livenessWindow
	}
	return &Reaper{log: log, reg: reg, metrics: metrics, interval: interval, window: window}
}

// Run sweeps until ctx is done. Call it in its own goroutine.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(time.Now().UTC())
		}
	}
}

// Sweep unregisters every connection whose last activity is older than
// the window. Exposed separately so tests can drive time explicitly.
func (r *Reaper) Sweep(now time.Time) int {
	if r == nil || r.reg == nil {
		return 0
	}

	cut := now.Add(-r.window)
	reaped := 0

	for _, c := range r.reg.Snapshot() {
		if c == nil || c.LastSeen().After(cut) {
			continue
		}

		r.reg.Unregister(c.ID)
		r.metrics.connReaped()
		reaped++
		r.log.Info("realtime.conn.reap", "conn_id", c.ID, "user_id", c.UserID, "last_seen", c.LastSeen())
	}
	return reaped
}
