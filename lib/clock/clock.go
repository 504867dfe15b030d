package clock

import (
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

func Now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// ISO formats t as UTC with millisecond precision, the layout stored in
// credential records (createdAt, expiresAt, deletedAt).
func ISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// Millis returns t as epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis is the inverse of Millis, in UTC.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
