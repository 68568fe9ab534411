package presence

import "testing"

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusOnline, StatusPaused, StatusOffline} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	for _, s := range []Status{"", "online", "BUSY", "AWAY"} {
		if Status(s).Valid() {
			t.Fatalf("%q should be invalid", s)
		}
	}
}

func TestPauseReasonValid(t *testing.T) {
	for _, r := range []PauseReason{PauseLunch, PauseBreak, PauseMeeting, PauseTraining, PauseOther} {
		if !r.Valid() {
			t.Fatalf("%q should be valid", r)
		}
	}
	for _, r := range []PauseReason{"", "lunch", "NAP", "free text reason"} {
		if PauseReason(r).Valid() {
			t.Fatalf("%q should be invalid", r)
		}
	}
}
