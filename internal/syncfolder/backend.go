package syncfolder

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entry describes one file in a sync folder.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Backend stores named files in a sync folder. Names are flat: no
// directories.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Put replaces the named file atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Get returns the file content, or an error wrapping ErrNotExist.
	Get(ctx context.Context, name string) ([]byte, error)

	// List returns the folder's files sorted by name.
	List(ctx context.Context) ([]Entry, error)

	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error

	// Location describes where the folder lives, for display.
	Location() string
}

// validateName rejects names that are empty, hidden or contain separators.
func validateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is hidden", ErrInvalidName, name)
	}
	return nil
}
