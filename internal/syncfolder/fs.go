package syncfolder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".tmp-"

// FSBackend stores sync files in a directory.
//
// Writes go to a temp file in the same directory and are renamed into place,
// so readers and folder-sync daemons never see a partial bundle.
type FSBackend struct {
	root string
}

// NewFSBackend returns a backend rooted at dir, creating it if needed.
func NewFSBackend(dir string) (*FSBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty directory", ErrUnavailable)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sync folder: %w", err)
	}
	return &FSBackend{root: dir}, nil
}

// Root returns the folder path.
func (b *FSBackend) Root() string {
	return b.root
}

// Location implements Backend.
func (b *FSBackend) Location() string {
	return b.root
}

// Put implements Backend.
func (b *FSBackend) Put(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.root, tempPrefix+"*")
	if err != nil {
		return b.wrap("put "+name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("put %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("put %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.root, name)); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}
	return nil
}

// Get implements Backend.
func (b *FSBackend) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(b.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		if _, statErr := os.Stat(b.root); statErr != nil {
			return nil, b.wrap("get "+name, statErr)
		}
		return nil, fmt.Errorf("get %s: %w", name, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return data, nil
}

// List implements Backend. Temp files from in-flight writes are skipped.
func (b *FSBackend) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, b.wrap("list", err)
	}

	entries := []Entry{}
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	}
	return entries, nil
}

// Delete implements Backend.
func (b *FSBackend) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(b.root, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// wrap maps a missing root directory to ErrUnavailable.
func (b *FSBackend) wrap(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w: %s", op, ErrUnavailable, b.root)
	}
	return fmt.Errorf("%s: %w", op, err)
}
