// Package uuid wraps github.com/google/uuid with time-ordered (v7) identifiers as the default,
// used for API roots, collections, jobs and job details.
package uuid

import (
	"github.com/google/uuid"
)

// UUID is github.com/google/uuid.UUID.
type UUID = uuid.UUID

// Nil is the zero UUID.
var Nil = uuid.Nil

// New returns a new UUIDv7. Panics if the random source fails.
func New() UUID {
	u, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return u
}

// NewString returns New().String().
func NewString() string {
	return New().String()
}

// NewRandom returns a new UUIDv7 and any error from the random source.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// Parse parses s in any of the forms accepted by github.com/google/uuid.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// IsValid reports whether s is a canonical 36 character UUID string.
func IsValid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
