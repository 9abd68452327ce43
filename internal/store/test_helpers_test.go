package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTime returns a fixed UTC instant offset by the given number of seconds.
func testTime(offset int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(offset) * time.Second)
}

// createTestStudy creates a test study with minimal required fields.
func createTestStudy(id, name string, offset int) domain.Study {
	return domain.Study{
		ID:        id,
		Name:      name,
		CreatedAt: testTime(offset),
		UpdatedAt: testTime(offset),
	}
}

// createTestContrast creates a test contrast anchored to the given verse.
func createTestContrast(id, book string, chapter, verse, offset int) domain.Contrast {
	return domain.Contrast{
		ID:        id,
		ItemA:     "light",
		ItemB:     "darkness",
		VerseRef:  domain.VerseRef{Book: book, Chapter: chapter, Verse: verse},
		CreatedAt: testTime(offset),
		UpdatedAt: testTime(offset),
	}
}
