package db

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrValidation is returned when a value in a write document is invalid.
	ErrValidation = errors.New("invalid data")
)

// pqErrorName returns the Postgres condition name of err, or "" when err is
// not a *pq.Error.
func pqErrorName(err error) string {
	var perr *pq.Error
	if errors.As(err, &perr) {
		return perr.Code.Name()
	}
	return ""
}
