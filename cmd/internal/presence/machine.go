package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"callboard/cmd/internal/directory"
)

// Publisher receives applied transitions for realtime fanout.
//
// Implementations must be non-blocking: publishing happens inside the
// transition call and must never suspend or fail it. Delivery is
// best-effort, at-most-once.
type Publisher interface {
	PresenceChanged(row AgentPresence, target directory.User)
}

// NopPublisher discards events; useful for tests and batch tools.
type NopPublisher struct{}

// PresenceChanged implements Publisher.
func (NopPublisher) PresenceChanged(AgentPresence, directory.User) {}

// Result is the outcome of a transition request.
//
// Applied=false means the write lost the per-user ordering guard; Presence
// then carries the stored current state and no history entry was written.
// That outcome is not an error: the slower of two racing writers simply
// observes the winner's state.
type Result struct {
	Presence AgentPresence
	Applied  bool
}

// Machine validates and applies presence transitions.
type Machine struct {
	store Store
	users directory.Store
	pub   Publisher
	log   *slog.Logger
}

// NewMachine constructs a Machine. A nil publisher disables fanout.
func NewMachine(store Store, users directory.Store, pub Publisher, log *slog.Logger) *Machine {
	if pub == nil {
		pub = NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{store: store, users: users, pub: pub, log: log}
}

// Current returns the presence row for userID, defaulting to OFFLINE for
// users with no row yet (rows are created lazily on first transition).
func (m *Machine) Current(ctx context.Context, userID string) (AgentPresence, error) {
	row, err := m.store.Get(ctx, userID)
	if errors.Is(err, ErrPresenceNotFound) {
		return AgentPresence{UserID: userID, Status: StatusOffline}, nil
	}
	if err != nil {
		return AgentPresence{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return row, nil
}

// Transition applies a user- or supervisor-initiated presence change.
//
// Guard order is fixed: authorization, then status/reason validation, then
// the store's ordering guard. Authorization lives here, not in callers:
// the actor must be the target, or a SUPERVISOR whose scope contains the
// target.
func (m *Machine) Transition(ctx context.Context, actor directory.User, targetUserID string, status Status, reason PauseReason, at time.Time) (Result, error) {
	target := actor
	if actor.ID != targetUserID {
		if actor.Role != directory.RoleSupervisor {
			return Result{}, ErrUnauthorizedTransition
		}

		var err error
		target, err = m.users.GetUser(ctx, targetUserID)
		if errors.Is(err, directory.ErrUserNotFound) {
			return Result{}, ErrUnauthorizedTransition
		}
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !target.SupervisedBy(actor.ID) {
			return Result{}, ErrUnauthorizedTransition
		}
	}

	if !status.Valid() {
		return Result{}, ErrInvalidStatus
	}
	if status == StatusPaused {
		if !reason.Valid() {
			return Result{}, ErrPauseReasonRequired
		}
	} else {
		// PauseReason is present iff PAUSED.
		reason = ""
	}

	return m.apply(ctx, target, status, reason, at)
}

// ForceOnline is the sign-in hook: it drives the user ONLINE from any prior
// state, bypassing actor authorization (the caller has just authenticated
// the user).
func (m *Machine) ForceOnline(ctx context.Context, userID string, at time.Time) (Result, error) {
	return m.force(ctx, userID, StatusOnline, at)
}

// ForceOffline is the sign-out hook: it drives the user OFFLINE from any
// prior state, clearing any pause reason.
func (m *Machine) ForceOffline(ctx context.Context, userID string, at time.Time) (Result, error) {
	return m.force(ctx, userID, StatusOffline, at)
}

func (m *Machine) force(ctx context.Context, userID string, status Status, at time.Time) (Result, error) {
	target, err := m.users.GetUser(ctx, userID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return Result{}, ErrUnauthorizedTransition
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return m.apply(ctx, target, status, "", at)
}

func (m *Machine) apply(ctx context.Context, target directory.User, status Status, reason PauseReason, at time.Time) (Result, error) {
	row, applied, err := m.store.Apply(ctx, ApplyInput{
		UserID:      target.ID,
		Status:      status,
		PauseReason: reason,
		At:          at,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if applied {
		m.pub.PresenceChanged(row, target)
	} else {
		m.log.Debug("presence.transition.superseded",
			"user_id", target.ID,
			"requested_status", string(status),
			"stored_version", row.Version,
		)
	}

	return Result{Presence: row, Applied: applied}, nil
}
