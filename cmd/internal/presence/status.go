package presence

// Status is the closed set of presence states. The machine is cyclic: any
// state can follow any other for the lifetime of the user account.
type Status string

const (
	// StatusOnline means the agent is available for work.
	StatusOnline Status = "ONLINE"
	// StatusPaused means the agent is signed in but unavailable; a
	// PauseReason is required.
	StatusPaused Status = "PAUSED"
	// StatusOffline means the agent is signed out. This is also the
	// implicit prior state of a user with no presence row yet.
	StatusOffline Status = "OFFLINE"
)

// Valid reports whether s is one of the three defined states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusPaused, StatusOffline:
		return true
	default:
		return false
	}
}

// PauseReason is the closed set of pause reasons. Free-text reasons from the
// legacy UI are rejected; only these values are accepted.
type PauseReason string

const (
	PauseLunch    PauseReason = "LUNCH"
	PauseBreak    PauseReason = "BREAK"
	PauseMeeting  PauseReason = "MEETING"
	PauseTraining PauseReason = "TRAINING"
	PauseOther    PauseReason = "OTHER"
)

// Valid reports whether r is a member of the enumerated reason set.
func (r PauseReason) Valid() bool {
	switch r {
	case PauseLunch, PauseBreak, PauseMeeting, PauseTraining, PauseOther:
		return true
	default:
		return false
	}
}
