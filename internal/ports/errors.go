package ports

import "errors"

// Sentinel errors shared by registry adapters.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
