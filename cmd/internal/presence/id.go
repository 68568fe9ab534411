package presence

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewEntryID returns a ULID used as history entry id.
// ULID is preferable to random hex: entries sort by apply time in logs.
func NewEntryID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
