package db

import "time"

// Timestamp normalizes t to the precision and zone every stock table stores.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
