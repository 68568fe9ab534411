package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callboard/cmd/internal/auth/session"
	"callboard/cmd/internal/directory"
	"callboard/cmd/internal/presence"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strptr(s string) *string { return &s }

type testEnv struct {
	mux      *http.ServeMux
	handler  *Handler
	users    *directory.MemoryStore
	sessions *session.MemoryStore
	presence *presence.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := directory.NewMemoryStore()
	hash, err := directory.HashPassword("agent-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	users.Seed(directory.User{ID: "agent-a", Username: "ada", Role: directory.RoleAgent, SupervisorID: strptr("sup-1")}, hash)
	users.Seed(directory.User{ID: "agent-b", Username: "bob", Role: directory.RoleAgent, SupervisorID: strptr("sup-2")}, hash)
	users.Seed(directory.User{ID: "sup-1", Username: "sam", Role: directory.RoleSupervisor}, hash)

	sessStore := session.NewMemoryStore()
	mgr := session.NewManager(session.DefaultConfig(), sessStore, users, testLogger())

	presStore := presence.NewMemoryStore()
	machine := presence.NewMachine(presStore, users, nil, testLogger())

	cfg := Config{
		MaxBodyBytes:   1 << 20,
		CookiePath:     "/",
		SignInIPMax:    20,
		SignInIPWindow: 5 * time.Minute,
	}
	h, err := NewHandler(testLogger(), cfg, nil, users, mgr, machine, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)

	return &testEnv{mux: mux, handler: h, users: users, sessions: sessStore, presence: presStore}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rd)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signIn(t *testing.T, username, password string) *http.Cookie {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Username: username, Password: password}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sign-in status = %d, body = %s", rec.Code, rec.Body.String())
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			return ck
		}
	}
	t.Fatalf("sign-in: no %s cookie", session.CookieName)
	return nil
}

func TestSignIn_SetsCookieAndForcesOnline(t *testing.T) {
	e := newTestEnv(t)
	before := time.Now().UTC()

	rec := e.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Username: "ada", Password: "agent-password"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp signInResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.ID != "agent-a" || resp.User.Role != "AGENT" {
		t.Fatalf("user = %+v", resp.User)
	}

	var ck *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			ck = c
		}
	}
	if ck == nil {
		t.Fatalf("missing session cookie")
	}
	if !ck.HttpOnly || ck.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie attributes: HttpOnly=%v SameSite=%v", ck.HttpOnly, ck.SameSite)
	}

	// Cookie lifetime tracks the 30 day session expiry.
	wantExp := before.Add(30 * 24 * time.Hour)
	if ck.Expires.Before(wantExp.Add(-time.Minute)) || ck.Expires.After(wantExp.Add(time.Minute)) {
		t.Fatalf("cookie expires = %v, want about %v", ck.Expires, wantExp)
	}

	// Presence was forced ONLINE with one history row.
	row, err := e.presence.Get(context.Background(), "agent-a")
	if err != nil {
		t.Fatalf("presence get: %v", err)
	}
	if row.Status != presence.StatusOnline || row.Version != 1 {
		t.Fatalf("presence = %+v", row)
	}
	hist, err := e.presence.History(context.Background(), "agent-a", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history rows = %d, want 1", len(hist))
	}
}

func TestSignIn_BadCredentials(t *testing.T) {
	e := newTestEnv(t)

	for _, req := range []signInRequest{
		{Username: "ada", Password: "wrong"},
		{Username: "nobody", Password: "agent-password"},
	} {
		rec := e.do(t, http.MethodPost, "/auth/sign-in", req, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", req.Username, rec.Code)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Fatalf("%s: cookie set on failed sign-in", req.Username)
		}
	}
}

func TestSignIn_ThrottledAfterRepeatedFailures(t *testing.T) {
	e := newTestEnv(t)
	e.handler.throttle = newSignInThrottle(3, time.Minute)

	for i := 0; i < 3; i++ {
		rec := e.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Username: "ada", Password: "wrong"}, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}

	rec := e.do(t, http.MethodPost, "/auth/sign-in", signInRequest{Username: "ada", Password: "agent-password"}, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
}

func TestSignOut_InvalidatesSessionAndForcesOffline(t *testing.T) {
	e := newTestEnv(t)
	ck := e.signIn(t, "ada", "agent-password")

	rec := e.do(t, http.MethodPost, "/auth/sign-out", nil, ck)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cleared = c
		}
	}
	if cleared == nil {
		t.Fatalf("sign-out did not set a clearing cookie")
	}
	if cleared.Value != "" || cleared.Expires.Unix() != 0 {
		t.Fatalf("clearing cookie = %+v, want empty value and epoch expiry", cleared)
	}

	row, err := e.presence.Get(context.Background(), "agent-a")
	if err != nil {
		t.Fatalf("presence get: %v", err)
	}
	if row.Status != presence.StatusOffline {
		t.Fatalf("status after sign-out = %s, want OFFLINE", row.Status)
	}

	// The invalidated cookie no longer authenticates.
	rec = e.do(t, http.MethodGet, "/presence/me", nil, ck)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reuse status = %d, want 401", rec.Code)
	}
}

func TestPresenceMe_RequiresSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/presence/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/presence/me", nil, &http.Cookie{Name: session.CookieName, Value: "not-a-real-token"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestPresenceSelf_PausedWithReason(t *testing.T) {
	e := newTestEnv(t)
	ck := e.signIn(t, "ada", "agent-password")

	rec := e.do(t, http.MethodPost, "/presence", presenceRequest{Status: "PAUSED", PauseReason: "LUNCH"}, ck)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp presenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "PAUSED" || resp.PauseReason != "LUNCH" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Applied == nil || !*resp.Applied {
		t.Fatalf("applied = %v, want true", resp.Applied)
	}
}

func TestPresenceSelf_ValidationErrors(t *testing.T) {
	e := newTestEnv(t)
	ck := e.signIn(t, "ada", "agent-password")

	rec := e.do(t, http.MethodPost, "/presence", presenceRequest{Status: "PAUSED"}, ck)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing reason status = %d, want 422", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/presence", presenceRequest{Status: "NAPPING"}, ck)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad status = %d, want 422", rec.Code)
	}
}

func TestPresenceAgent_SupervisorScope(t *testing.T) {
	e := newTestEnv(t)
	supCk := e.signIn(t, "sam", "agent-password")

	// sam supervises agent-a: allowed.
	rec := e.do(t, http.MethodPost, "/presence/agents/agent-a", presenceRequest{Status: "PAUSED", PauseReason: "MEETING"}, supCk)
	if rec.Code != http.StatusOK {
		t.Fatalf("supervised transition status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// agent-b reports to a different supervisor: forbidden, state untouched.
	rec = e.do(t, http.MethodPost, "/presence/agents/agent-b", presenceRequest{Status: "ONLINE"}, supCk)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("out-of-scope status = %d, want 403", rec.Code)
	}
	if _, err := e.presence.Get(context.Background(), "agent-b"); err == nil {
		t.Fatalf("out-of-scope transition created presence state")
	}

	// An agent may not drive another agent at all.
	agentCk := e.signIn(t, "ada", "agent-password")
	rec = e.do(t, http.MethodPost, "/presence/agents/agent-b", presenceRequest{Status: "ONLINE"}, agentCk)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("agent-driving-agent status = %d, want 403", rec.Code)
	}
}

func TestPresenceAgent_UnknownPath(t *testing.T) {
	e := newTestEnv(t)
	ck := e.signIn(t, "sam", "agent-password")

	rec := e.do(t, http.MethodPost, "/presence/agents/", presenceRequest{Status: "ONLINE"}, ck)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty id status = %d, want 404", rec.Code)
	}
}
