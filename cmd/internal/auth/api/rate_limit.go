package authapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// signInThrottle is an in-memory per-IP sliding-window limiter for
// credential checks. Failures count; successful sign-ins do not.
type signInThrottle struct {
	mu     sync.Mutex
	byIP   map[string][]time.Time
	max    int
	window time.Duration
}

func newSignInThrottle(max int, window time.Duration) *signInThrottle {
	if max <= 0 {
		max = 20
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &signInThrottle{
		byIP:   make(map[string][]time.Time),
		max:    max,
		window: window,
	}
}

// blocked reports whether ip has exceeded the failure budget.
func (t *signInThrottle) blocked(ip string, now time.Time) (bool, time.Duration) {
	if t == nil || ip == "" {
		return false, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	events := t.prune(ip, now)
	if len(events) >= t.max {
		return true, t.window
	}
	return false, 0
}

// fail records a failed sign-in attempt for ip.
func (t *signInThrottle) fail(ip string, now time.Time) {
	if t == nil || ip == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.byIP[ip] = append(t.prune(ip, now), now)
}

// prune drops expired events. Caller holds the lock.
func (t *signInThrottle) prune(ip string, now time.Time) []time.Time {
	cut := now.Add(-t.window)
	dst := t.byIP[ip][:0]
	for _, at := range t.byIP[ip] {
		if at.After(cut) {
			dst = append(dst, at)
		}
	}
	if len(dst) == 0 {
		delete(t.byIP, ip)
		return nil
	}
	t.byIP[ip] = dst
	return dst
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
