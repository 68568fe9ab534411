// Package main provides a CI-friendly smoke test for Callboard presence fanout.
//
// It validates:
//   - sign-in sets the session cookie
//   - WS handshake + subprotocol selection with that cookie
//   - keepalive acceptance
//   - a self PAUSED transition fans out to the agent's own connection
//     and the supervisor's connection
//   - sign-out fans out an OFFLINE update to the supervisor
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "callboard/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "callboard.realtime.v1"
	maxReadBytes       = 1 << 20 // 1MiB
	cookieName         = "session"
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("base", "http://127.0.0.1:8080", "HTTP base URL")
		wsURL    = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like handshake)")
		agent    = flag.String("agent", "", "Agent username")
		agentPw  = flag.String("agent-password", "", "Agent password")
		sup      = flag.String("supervisor", "", "Supervisor username")
		supPw    = flag.String("supervisor-password", "", "Supervisor password")
		reason   = flag.String("reason", "LUNCH", "Pause reason to apply")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if *agent == "" || *agentPw == "" || *sup == "" || *supPw == "" {
		fatalf("missing credentials: -agent/-agent-password/-supervisor/-supervisor-password are required")
	}

	root := context.Background()

	agentCookie, agentID := mustSignIn(root, *baseURL, *origin, *agent, *agentPw, *timeout)
	supCookie, _ := mustSignIn(root, *baseURL, *origin, *sup, *supPw, *timeout)

	a := mustConnect(root, "agent", *wsURL, *origin, agentCookie, *timeout)
	defer closeWS(a.conn)

	s := mustConnect(root, "supervisor", *wsURL, *origin, supCookie, *timeout)
	defer closeWS(s.conn)

	if *verbose {
		fmt.Printf("connected: agent=%s origin=%q\n", agentID, *origin)
	}

	mustKeepalive(root, a, *timeout)
	mustKeepalive(root, s, *timeout)

	// The sign-ins above force ONLINE; drain those updates before the
	// transition under test.
	drainStatusUpdates(root, a, 750*time.Millisecond)
	drainStatusUpdates(root, s, 750*time.Millisecond)

	mustTransitionSelf(root, *baseURL, *origin, agentCookie, "PAUSED", *reason, *timeout)

	mustAssertStatus(root, a, agentID, "PAUSED", *reason, *timeout)
	mustAssertStatus(root, s, agentID, "PAUSED", *reason, *timeout)

	mustSignOut(root, *baseURL, *origin, agentCookie, *timeout)

	mustAssertStatus(root, s, agentID, "OFFLINE", "", *timeout)

	fmt.Printf("OK: agent=%s reason=%s\n", agentID, *reason)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustSignIn(parent context.Context, baseURL, origin, username, password string, stepTimeout time.Duration) (cookie, userID string) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		fatalf("marshal sign-in body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/sign-in", bytes.NewReader(body))
	if err != nil {
		fatalf("build sign-in request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(origin) != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("sign-in %s: %v", username, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fatalf("sign-in %s: status=%d", username, resp.StatusCode)
	}

	for _, c := range resp.Cookies() {
		if c.Name == cookieName && c.Value != "" {
			cookie = c.Value
		}
	}
	if cookie == "" {
		fatalf("sign-in %s: no %s cookie set", username, cookieName)
	}

	var parsed struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		fatalf("decode sign-in response (%s): %v", username, err)
	}
	if strings.TrimSpace(parsed.User.ID) == "" {
		fatalf("sign-in %s: missing user id", username)
	}
	return cookie, parsed.User.ID
}

func mustSignOut(parent context.Context, baseURL, origin, cookie string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/sign-out", nil)
	if err != nil {
		fatalf("build sign-out request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	if strings.TrimSpace(origin) != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("sign-out: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		fatalf("sign-out: status=%d", resp.StatusCode)
	}
}

func mustTransitionSelf(parent context.Context, baseURL, origin, cookie, status, reason string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"status": status, "pause_reason": reason})
	if err != nil {
		fatalf("marshal presence body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/presence", bytes.NewReader(body))
	if err != nil {
		fatalf("build presence request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	if strings.TrimSpace(origin) != "" {
		req.Header.Set("Origin", origin)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("presence transition: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fatalf("presence transition: status=%d", resp.StatusCode)
	}
}

func mustConnect(parent context.Context, name, wsURL, origin, cookie string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Cookie", (&http.Cookie{Name: cookieName, Value: cookie}).String())

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustKeepalive(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:         v1.Version,
		Type:      v1.TypeKeepalive,
		ID:        fmt.Sprintf("%s-keepalive", c.name),
		Timestamp: time.Now().UTC(),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func drainStatusUpdates(parent context.Context, c *smokeClient, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.errCh:
			return
		case _, ok := <-c.inbox:
			if !ok {
				return
			}
		}
	}
}

func mustAssertStatus(parent context.Context, c *smokeClient, userID, status, reason string, stepTimeout time.Duration) {
	env := c.mustReadUntilType(parent, v1.TypeAgentStatusUpdate, stepTimeout)

	var p v1.AgentStatusUpdatePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal status payload (%s): %v", c.name, err)
	}
	if p.UserID != userID {
		fatalf("status user_id mismatch (%s): got=%q want=%q", c.name, p.UserID, userID)
	}
	if p.Status != status {
		fatalf("status mismatch (%s): got=%q want=%q", c.name, p.Status, status)
	}
	if p.PauseReason != reason {
		fatalf("pause_reason mismatch (%s): got=%q want=%q", c.name, p.PauseReason, reason)
	}
	if p.LastUpdated.IsZero() {
		fatalf("status last_updated missing/zero (%s)", c.name)
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			// Activity-log and notification traffic is expected noise here.
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
