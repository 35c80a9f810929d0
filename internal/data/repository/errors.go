package repository

import "errors"

var (
	// ErrNotFound is returned when a referenced catalog row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSeatConflict means another session holds (or bought) the seat.
	ErrSeatConflict = errors.New("seat held by another session")

	// ErrStaleWrite means the row changed since it was read; reload and retry.
	ErrStaleWrite = errors.New("stale write")
)
