package presence

import "errors"

var (
	// ErrUnauthorizedTransition is returned when the actor is neither the
	// target user nor the target's supervisor.
	ErrUnauthorizedTransition = errors.New("unauthorized presence transition")

	// ErrInvalidStatus is returned for a status outside the closed set.
	ErrInvalidStatus = errors.New("invalid status value")

	// ErrPauseReasonRequired is returned when PAUSED is requested without a
	// reason from the enumerated set.
	ErrPauseReasonRequired = errors.New("pause reason required")

	// ErrStoreUnavailable wraps transient persistence failures. The caller
	// must retry the whole transition; it is never retried internally, to
	// avoid duplicate history entries.
	ErrStoreUnavailable = errors.New("presence store unavailable")
)
