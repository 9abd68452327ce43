package state

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// StudyRepository is the persistence contract consumed by StudyStore.
type StudyRepository interface {
	GetAllStudies(ctx context.Context) ([]domain.Study, error)
	SaveStudy(ctx context.Context, study domain.Study) error
	DeleteStudy(ctx context.Context, id string) error
}

// StudyBatchSaver is implemented by repositories that can persist several
// studies atomically. StudyStore uses it for exclusivity updates when present.
type StudyBatchSaver interface {
	SaveStudies(ctx context.Context, studies []domain.Study) error
}

// ContrastRepository is the persistence contract consumed by ContrastStore.
type ContrastRepository interface {
	GetAllContrasts(ctx context.Context) ([]domain.Contrast, error)
	SaveContrast(ctx context.Context, c domain.Contrast) error
	DeleteContrast(ctx context.Context, id string) error
}

// SnapshotStore persists the small per-store state that survives restarts.
// LoadSnapshot returns nil when nothing was saved.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, name string) ([]byte, error)
	SaveSnapshot(ctx context.Context, name string, payload []byte) error
}

// IDGenerator allocates entity ids.
// Implemented by UUIDv7Generator (production) and testutil.SequentialIDs (tests).
type IDGenerator interface {
	Generate() string
}

// Clock supplies creation and update timestamps.
type Clock interface {
	Now() time.Time
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
