package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a snapshot with the same id was already saved.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorruptStore marks persisted state that could not be parsed.
	// Backends recover from it by starting empty; it is logged, not returned to callers of Open.
	ErrCorruptStore = errors.New("corrupt store")
)
