// Package models defines the TAXII data model shared by the store and the API layer.
package models

import "time"

// TimestampLayout renders timestamps on the TAXII wire.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Timestamp normalises t to the precision kept by the store: UTC, whole microseconds.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatTimestamp renders t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
