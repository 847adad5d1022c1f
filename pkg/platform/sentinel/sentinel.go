package sentinel

import "errors"

// Sentinel dependency errors. Stores and external adapters return these (optionally wrapped)
// so services can translate them into domain errors exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("unavailable")
)
