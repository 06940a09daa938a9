package shared

import "time"

// EpochMS converts a time to Unix epoch milliseconds, the timestamp
// representation used across the bridge boundary.
func EpochMS(t time.Time) int64 {
	return t.UnixMilli()
}

// EpochMSPtr converts an optional time to epoch milliseconds, nil for the
// zero time.
func EpochMSPtr(t *time.Time) *int64 {
	if t == nil || t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// FromEpochMS converts epoch milliseconds back to a UTC time.
func FromEpochMS(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
