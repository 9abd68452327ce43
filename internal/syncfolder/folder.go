package syncfolder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/biblemarker/biblemarker/internal/config"
)

// documentsDir is the subdirectory of an iCloud-style container that is
// visible and synced.
const documentsDir = "Documents"

// ResolveFolder returns the sync folder for cfg and creates it. A container
// root resolves to its Documents subdirectory; otherwise Dir is used.
// A leading "~/" expands to the home directory.
func ResolveFolder(cfg config.SyncConfig) (string, error) {
	var dir string
	switch {
	case cfg.Container != "":
		root, err := expandHome(cfg.Container)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(root); err != nil {
			return "", fmt.Errorf("%w: container %s: %v", ErrUnavailable, root, err)
		}
		dir = filepath.Join(root, documentsDir)
	case cfg.Dir != "":
		expanded, err := expandHome(cfg.Dir)
		if err != nil {
			return "", err
		}
		dir = expanded
	default:
		return "", fmt.Errorf("%w: no sync folder configured", ErrUnavailable)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create sync folder: %w", err)
	}
	return dir, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// OpenBackend selects a Backend for cfg. The none driver yields a nil
// backend and no error.
func OpenBackend(ctx context.Context, cfg config.SyncConfig) (Backend, error) {
	switch cfg.Driver {
	case "", config.DriverNone:
		return nil, nil
	case config.DriverFS:
		dir, err := ResolveFolder(cfg)
		if err != nil {
			return nil, err
		}
		return NewFSBackend(dir)
	case config.DriverS3:
		return NewS3Backend(ctx, S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown sync driver %q", cfg.Driver)
	}
}

// DeleteLocalDatabase removes the SQLite database at path together with its
// -wal and -shm side files, so the next open starts empty (or re-syncs).
// The database must be closed. Missing files are skipped; the removed paths
// are returned.
func DeleteLocalDatabase(path string) ([]string, error) {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return nil, fmt.Errorf("delete local database: %q is not a file", path)
	}

	removed := []string{}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed = append(removed, p)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, fmt.Errorf("delete local database: %w", err)
		}
	}
	return removed, nil
}
