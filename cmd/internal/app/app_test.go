package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestApp(t *testing.T) *App {
	t.Helper()

	cfg := Config{
		HTTPAddr: "127.0.0.1:0",
		LogLevel: "error",
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := New(cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.store.Close(t.Context()) })
	return a
}

func testMux(a *App, cfg Config) *http.ServeMux {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, cfg, a.dbPool, a.dbEnabled, a.metrics, a.ws, a.auth)
	return mux
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t)
	mux := testMux(a, a.cfg)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if got := rr.Body.String(); got != "ok\n" {
		t.Fatalf("healthz body=%q", got)
	}
}

func TestReadyz_MemoryMode(t *testing.T) {
	a := newTestApp(t)
	mux := testMux(a, a.cfg)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("readyz status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestReadyz_RequiresDBWhenConfigured(t *testing.T) {
	a := newTestApp(t)

	cfg := a.cfg
	cfg.ReadinessRequireDB = true
	mux := testMux(a, cfg)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503 without a database", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	mux := testMux(a, a.cfg)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics body missing go runtime collectors")
	}
	if !strings.Contains(body, "callboard_realtime_connections") {
		t.Fatalf("metrics body missing realtime gauge")
	}
}

func TestNonZeroFallbacks(t *testing.T) {
	t.Parallel()

	if got := nonZeroDuration(0, 5*time.Second); got != 5*time.Second {
		t.Fatalf("nonZeroDuration zero fallback: %v", got)
	}
	if got := nonZeroDuration(time.Second, 5*time.Second); got != time.Second {
		t.Fatalf("nonZeroDuration set value: %v", got)
	}
	if got := nonZeroInt(0, 1024); got != 1024 {
		t.Fatalf("nonZeroInt zero fallback: %d", got)
	}
	if got := nonZeroInt(7, 1024); got != 7 {
		t.Fatalf("nonZeroInt set value: %d", got)
	}
}
