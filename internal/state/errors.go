package state

import "errors"

var (
	// ErrNotFound is returned when an update targets an id absent from the cache.
	ErrNotFound = errors.New("not found")

	// ErrInvalidStudy is returned when a study fails validation (e.g. empty name).
	ErrInvalidStudy = errors.New("invalid study")

	// ErrInvalidContrast is returned when a contrast fails validation.
	ErrInvalidContrast = errors.New("invalid contrast")
)
