package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"callboard/cmd/internal/directory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingPublisher captures fanout calls for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []AgentPresence
}

func (p *recordingPublisher) PresenceChanged(row AgentPresence, _ directory.User) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, row)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func strptr(s string) *string { return &s }

func newTestMachine(t *testing.T) (*Machine, *MemoryStore, *recordingPublisher) {
	t.Helper()

	users := directory.NewMemoryStore()
	users.Seed(directory.User{ID: "sup-1", Username: "sam", Role: directory.RoleSupervisor}, "")
	users.Seed(directory.User{ID: "agent-a", Username: "ada", Role: directory.RoleAgent, SupervisorID: strptr("sup-1")}, "")
	users.Seed(directory.User{ID: "agent-b", Username: "bob", Role: directory.RoleAgent, SupervisorID: strptr("sup-2")}, "")

	store := NewMemoryStore()
	pub := &recordingPublisher{}
	return NewMachine(store, users, pub, testLogger()), store, pub
}

func agentA() directory.User {
	return directory.User{ID: "agent-a", Username: "ada", Role: directory.RoleAgent, SupervisorID: strptr("sup-1")}
}

func TestTransition_LazyCreationFromOffline(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()

	// No row yet: current state defaults to OFFLINE.
	row, err := m.Current(ctx, "agent-a")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if row.Status != StatusOffline || row.Version != 0 {
		t.Fatalf("default state = %+v, want OFFLINE v0", row)
	}

	res, err := m.Transition(ctx, agentA(), "agent-a", StatusOnline, "", time.Now().UTC())
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !res.Applied || res.Presence.Status != StatusOnline || res.Presence.Version != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTransition_SameStateTwiceAppendsTwoHistoryRows(t *testing.T) {
	m, store, _ := newTestMachine(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 2; i++ {
		res, err := m.Transition(ctx, agentA(), "agent-a", StatusOnline, "", base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Transition %d: %v", i, err)
		}
		if !res.Applied || res.Presence.Status != StatusOnline {
			t.Fatalf("Transition %d not applied: %+v", i, res)
		}
	}

	h, err := store.History(ctx, "agent-a", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 2 {
		t.Fatalf("history rows = %d, want 2 (no-op reapplication still logged)", len(h))
	}

	row, _ := m.Current(ctx, "agent-a")
	if row.Status != StatusOnline || row.Version != 2 {
		t.Fatalf("state = %+v, want ONLINE v2", row)
	}
}

func TestTransition_OutOfOrderTimestampsNewerWins(t *testing.T) {
	m, store, _ := newTestMachine(t)
	ctx := context.Background()

	t1 := time.Now().UTC()
	t2 := t1.Add(2 * time.Second)

	// Process t2 first, then the older t1.
	res2, err := m.Transition(ctx, agentA(), "agent-a", StatusPaused, PauseLunch, t2)
	if err != nil {
		t.Fatalf("t2: %v", err)
	}
	if !res2.Applied {
		t.Fatalf("t2 should apply")
	}

	res1, err := m.Transition(ctx, agentA(), "agent-a", StatusOnline, "", t1)
	if err != nil {
		t.Fatalf("t1: %v", err)
	}
	if res1.Applied {
		t.Fatalf("t1 (older timestamp) must be rejected")
	}
	// The rejected caller observes the winner's state.
	if res1.Presence.Status != StatusPaused || res1.Presence.PauseReason != PauseLunch {
		t.Fatalf("superseded caller saw %+v, want winner's PAUSED/LUNCH", res1.Presence)
	}

	h, _ := store.History(ctx, "agent-a", 10)
	if len(h) != 1 {
		t.Fatalf("history rows = %d, want 1 (rejected write logs nothing)", len(h))
	}

	row, _ := m.Current(ctx, "agent-a")
	if row.Status != StatusPaused || row.PauseReason != PauseLunch || row.Version != 1 {
		t.Fatalf("final state = %+v, want t2's PAUSED/LUNCH v1", row)
	}
}

func TestTransition_EqualTimestampRejected(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	at := time.Now().UTC()

	if _, err := m.Transition(ctx, agentA(), "agent-a", StatusOnline, "", at); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := m.Transition(ctx, agentA(), "agent-a", StatusOffline, "", at)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Applied {
		t.Fatalf("write with non-strictly-newer timestamp must be rejected")
	}
}

func TestTransition_SupervisorOnSupervisedAgent(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	sup := directory.User{ID: "sup-1", Username: "sam", Role: directory.RoleSupervisor}

	res, err := m.Transition(ctx, sup, "agent-a", StatusPaused, PauseLunch, time.Now().UTC())
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !res.Applied || res.Presence.Status != StatusPaused || res.Presence.PauseReason != PauseLunch {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTransition_UnauthorizedActors(t *testing.T) {
	m, store, pub := newTestMachine(t)
	ctx := context.Background()

	agentB := directory.User{ID: "agent-b", Username: "bob", Role: directory.RoleAgent, SupervisorID: strptr("sup-2")}

	// Agent B is neither agent A nor A's supervisor.
	if _, err := m.Transition(ctx, agentB, "agent-a", StatusOnline, "", time.Now().UTC()); !errors.Is(err, ErrUnauthorizedTransition) {
		t.Fatalf("err = %v, want ErrUnauthorizedTransition", err)
	}

	// A supervisor outside the target's scope is rejected too.
	otherSup := directory.User{ID: "sup-9", Username: "sol", Role: directory.RoleSupervisor}
	if _, err := m.Transition(ctx, otherSup, "agent-a", StatusOnline, "", time.Now().UTC()); !errors.Is(err, ErrUnauthorizedTransition) {
		t.Fatalf("err = %v, want ErrUnauthorizedTransition", err)
	}

	// No state, history, or fanout side effects.
	if _, err := store.Get(ctx, "agent-a"); !errors.Is(err, ErrPresenceNotFound) {
		t.Fatalf("expected no presence row, got err=%v", err)
	}
	h, _ := store.History(ctx, "agent-a", 10)
	if len(h) != 0 {
		t.Fatalf("history rows = %d, want 0", len(h))
	}
	if pub.count() != 0 {
		t.Fatalf("publisher called %d times, want 0", pub.count())
	}
}

func TestTransition_Validation(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := m.Transition(ctx, agentA(), "agent-a", Status("BUSY"), "", now); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
	if _, err := m.Transition(ctx, agentA(), "agent-a", StatusPaused, "", now); !errors.Is(err, ErrPauseReasonRequired) {
		t.Fatalf("err = %v, want ErrPauseReasonRequired", err)
	}
	// Free-text reasons are legacy behavior; the closed enum is authoritative.
	if _, err := m.Transition(ctx, agentA(), "agent-a", StatusPaused, PauseReason("walking the dog"), now); !errors.Is(err, ErrPauseReasonRequired) {
		t.Fatalf("err = %v, want ErrPauseReasonRequired", err)
	}
}

func TestTransition_ReasonClearedWhenNotPaused(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()
	base := time.Now().UTC()

	if _, err := m.Transition(ctx, agentA(), "agent-a", StatusPaused, PauseBreak, base); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// A stray reason on a non-PAUSED transition is dropped, not stored.
	res, err := m.Transition(ctx, agentA(), "agent-a", StatusOnline, PauseBreak, base.Add(time.Second))
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if res.Presence.PauseReason != "" {
		t.Fatalf("pause reason survived a non-PAUSED transition: %+v", res.Presence)
	}
}

func TestForceOnlineAndOffline(t *testing.T) {
	m, store, pub := newTestMachine(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Sign-in forces ONLINE from the lazy OFFLINE default.
	res, err := m.ForceOnline(ctx, "agent-a", base)
	if err != nil {
		t.Fatalf("ForceOnline: %v", err)
	}
	if !res.Applied || res.Presence.Status != StatusOnline {
		t.Fatalf("unexpected result: %+v", res)
	}
	h, _ := store.History(ctx, "agent-a", 10)
	if len(h) != 1 {
		t.Fatalf("history rows after sign-in = %d, want 1", len(h))
	}

	// Pause, then sign-out: OFFLINE wins from any state and clears the reason.
	if _, err := m.Transition(ctx, agentA(), "agent-a", StatusPaused, PauseLunch, base.Add(time.Second)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	res, err = m.ForceOffline(ctx, "agent-a", base.Add(2*time.Second))
	if err != nil {
		t.Fatalf("ForceOffline: %v", err)
	}
	if !res.Applied || res.Presence.Status != StatusOffline || res.Presence.PauseReason != "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if pub.count() != 3 {
		t.Fatalf("publisher called %d times, want 3 (one per applied transition)", pub.count())
	}
}

// failingPresenceStore simulates an outage.
type failingPresenceStore struct{}

var errPresenceDown = errors.New("presence store down")

func (failingPresenceStore) Get(context.Context, string) (AgentPresence, error) {
	return AgentPresence{}, errPresenceDown
}

func (failingPresenceStore) Apply(context.Context, ApplyInput) (AgentPresence, bool, error) {
	return AgentPresence{}, false, errPresenceDown
}

func (failingPresenceStore) History(context.Context, string, int) ([]HistoryEntry, error) {
	return nil, errPresenceDown
}

func TestTransition_StoreOutageIsRetryable(t *testing.T) {
	users := directory.NewMemoryStore()
	users.Seed(directory.User{ID: "agent-a", Username: "ada", Role: directory.RoleAgent, SupervisorID: strptr("sup-1")}, "")

	pub := &recordingPublisher{}
	m := NewMachine(failingPresenceStore{}, users, pub, testLogger())

	_, err := m.Transition(context.Background(), agentA(), "agent-a", StatusOnline, "", time.Now().UTC())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if pub.count() != 0 {
		t.Fatalf("no fanout on failed transition")
	}
}
