package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a report does not exist or belongs to
	// another tenant.
	ErrNotFound = errors.New("report not found")

	// ErrConflict is returned when a report with the given ID already exists.
	ErrConflict = errors.New("report already exists")
)
