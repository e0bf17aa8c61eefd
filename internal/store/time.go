package store

import (
	"time"

	"github.com/google/uuid"
)

// timeLayout is RFC 3339 in UTC with a fixed nine-digit fraction, so stored
// timestamps sort lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeNow is a package-level variable for testability.
var timeNow = func() time.Time { return time.Now().UTC() }

// newID is replaceable in tests that need stable identifiers.
var newID = func() string { return uuid.NewString() }

// stamp fills in the identity and timestamps of a record about to be written.
func stamp(rec Record, now time.Time) Record {
	if rec.ID == "" {
		rec.ID = newID()
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return rec
}
