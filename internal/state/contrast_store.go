package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// ContrastInput holds the caller-supplied fields of a new contrast.
// Empty optional fields are absent.
type ContrastInput struct {
	ItemA        string
	ItemB        string
	VerseRef     domain.VerseRef
	Notes        string
	PresetID     string
	AnnotationID string
}

// ContrastStore caches the contrast collection. Queries scan the cache in
// insertion order; there are no index structures.
//
// Thread-safety: all methods are safe for concurrent use.
type ContrastStore struct {
	repo ContrastRepository
	cfg  storeConfig

	mu        sync.RWMutex
	contrasts []domain.Contrast
}

// NewContrastStore creates an empty store over repo. Call LoadContrasts to
// populate the cache.
func NewContrastStore(repo ContrastRepository, opts ...Option) *ContrastStore {
	return &ContrastStore{
		repo:      repo,
		cfg:       buildConfig(opts),
		contrasts: []domain.Contrast{},
	}
}

// LoadContrasts replaces the cache with every contrast from the repository.
func (s *ContrastStore) LoadContrasts(ctx context.Context) error {
	contrasts, err := s.repo.GetAllContrasts(ctx)
	if err != nil {
		return fmt.Errorf("load contrasts: %w", err)
	}

	s.mu.Lock()
	s.contrasts = append([]domain.Contrast{}, contrasts...)
	s.mu.Unlock()

	s.cfg.logger.Debug("contrasts loaded", "count", len(contrasts))
	return nil
}

// CreateContrast trims the items and notes, stamps both timestamps, persists
// the contrast and appends it to the cache.
func (s *ContrastStore) CreateContrast(ctx context.Context, in ContrastInput) (domain.Contrast, error) {
	now := s.cfg.clock.Now()
	c := domain.Contrast{
		ItemA:        in.ItemA,
		ItemB:        in.ItemB,
		VerseRef:     in.VerseRef,
		Notes:        in.Notes,
		PresetID:     domain.NormalizeText(in.PresetID),
		AnnotationID: domain.NormalizeText(in.AnnotationID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}.Normalize()

	if err := validateContrast(c); err != nil {
		return domain.Contrast{}, fmt.Errorf("create contrast: %w", err)
	}
	c.ID = s.cfg.ids.Generate()

	if err := s.repo.SaveContrast(ctx, c); err != nil {
		return domain.Contrast{}, fmt.Errorf("create contrast: %w", err)
	}

	s.mu.Lock()
	s.contrasts = append(s.contrasts, c)
	s.mu.Unlock()

	s.cfg.logger.Debug("contrast created", "id", c.ID, "verse", c.VerseRef.String())
	return c, nil
}

// UpdateContrast re-trims the text fields, stamps UpdatedAt, persists the
// contrast and replaces the cached entry with the same id.
func (s *ContrastStore) UpdateContrast(ctx context.Context, c domain.Contrast) (domain.Contrast, error) {
	c = c.Normalize()
	c.PresetID = domain.NormalizeText(c.PresetID)
	c.AnnotationID = domain.NormalizeText(c.AnnotationID)
	if err := validateContrast(c); err != nil {
		return domain.Contrast{}, fmt.Errorf("update contrast: %w", err)
	}
	c.UpdatedAt = s.cfg.clock.Now()

	s.mu.RLock()
	found := indexOfContrast(s.contrasts, c.ID) >= 0
	s.mu.RUnlock()
	if !found {
		return domain.Contrast{}, fmt.Errorf("update contrast %s: %w", c.ID, ErrNotFound)
	}

	if err := s.repo.SaveContrast(ctx, c); err != nil {
		return domain.Contrast{}, fmt.Errorf("update contrast: %w", err)
	}

	s.mu.Lock()
	if idx := indexOfContrast(s.contrasts, c.ID); idx >= 0 {
		s.contrasts[idx] = c
	}
	s.mu.Unlock()

	s.cfg.logger.Debug("contrast updated", "id", c.ID)
	return c, nil
}

// DeleteContrast removes a contrast from the repository and the cache.
func (s *ContrastStore) DeleteContrast(ctx context.Context, id string) error {
	if err := s.repo.DeleteContrast(ctx, id); err != nil {
		return fmt.Errorf("delete contrast: %w", err)
	}

	s.mu.Lock()
	if idx := indexOfContrast(s.contrasts, id); idx >= 0 {
		s.contrasts = append(s.contrasts[:idx:idx], s.contrasts[idx+1:]...)
	}
	s.mu.Unlock()

	s.cfg.logger.Debug("contrast deleted", "id", id)
	return nil
}

// GetContrast returns the cached contrast with the given id.
func (s *ContrastStore) GetContrast(id string) (domain.Contrast, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexOfContrast(s.contrasts, id)
	if idx < 0 {
		return domain.Contrast{}, false
	}
	return s.contrasts[idx], true
}

// GetContrastsByVerse returns the contrasts whose book, chapter and verse all
// equal ref's, in insertion order.
func (s *ContrastStore) GetContrastsByVerse(ref domain.VerseRef) []domain.Contrast {
	ref.Book = domain.NormalizeText(ref.Book)
	return s.filter(func(c domain.Contrast) bool {
		return c.VerseRef.Equal(ref)
	})
}

// GetContrastsByBook returns the contrasts anchored anywhere in book, in
// insertion order.
func (s *ContrastStore) GetContrastsByBook(book string) []domain.Contrast {
	book = domain.NormalizeText(book)
	return s.filter(func(c domain.Contrast) bool {
		return c.VerseRef.Book == book
	})
}

// Contrasts returns a copy of the cached collection in insertion order.
func (s *ContrastStore) Contrasts() []domain.Contrast {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Contrast{}, s.contrasts...)
}

// Snapshot returns the persisted subset of the store, which is empty.
func (s *ContrastStore) Snapshot() ContrastSnapshot {
	return PersistContrastState()
}

func (s *ContrastStore) filter(match func(domain.Contrast) bool) []domain.Contrast {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Contrast{}
	for _, c := range s.contrasts {
		if match(c) {
			out = append(out, c)
		}
	}
	return out
}

func validateContrast(c domain.Contrast) error {
	if c.ItemA == "" || c.ItemB == "" {
		return fmt.Errorf("%w: both items are required", ErrInvalidContrast)
	}
	if err := c.VerseRef.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContrast, err)
	}
	return nil
}

func indexOfContrast(contrasts []domain.Contrast, id string) int {
	for i, c := range contrasts {
		if c.ID == id {
			return i
		}
	}
	return -1
}
