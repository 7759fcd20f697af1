package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrPreconditionFailed is returned when an ETag mismatch occurs.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTooLarge is returned when content exceeds what the store accepts.
	ErrTooLarge = errors.New("file content is too large")
)
