package syncfolder

import "errors"

var (
	// ErrUnavailable is returned when no sync folder is configured or the
	// folder does not exist.
	ErrUnavailable = errors.New("sync folder unavailable")

	// ErrNotExist is returned by Backend.Get for a missing file.
	ErrNotExist = errors.New("sync file does not exist")

	// ErrInvalidBundle is returned when a bundle fails schema validation or
	// cannot be decoded.
	ErrInvalidBundle = errors.New("invalid sync bundle")

	// ErrInvalidName is returned for file names that are empty or would
	// escape the folder.
	ErrInvalidName = errors.New("invalid sync file name")
)
