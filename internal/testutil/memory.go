package testutil

import (
	"context"
	"sync"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// MemoryRepository is an in-memory persistence layer for store tests.
//
// It implements the study, contrast and snapshot contracts but NOT the
// batch contract, so stores fall back to parallel per-study writes.
// Records keep insertion order; saves upsert by id.
//
// Failure hooks are consulted before each operation; a non-nil error is
// returned without touching the data.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryRepository struct {
	mu        sync.Mutex
	studies   []domain.Study
	contrasts []domain.Contrast
	snapshots map[string][]byte

	// Failure hooks (optional).
	FailGetAll         error
	FailSaveStudy      func(domain.Study) error
	FailDeleteStudy    error
	FailSaveContrast   error
	FailDeleteContrast error

	// StudySaves counts SaveStudy calls, successful or not.
	StudySaves int
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{snapshots: map[string][]byte{}}
}

// GetAllStudies returns a copy of every stored study.
func (r *MemoryRepository) GetAllStudies(ctx context.Context) ([]domain.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailGetAll != nil {
		return nil, r.FailGetAll
	}
	return append([]domain.Study{}, r.studies...), nil
}

// SaveStudy upserts a study by id.
func (r *MemoryRepository) SaveStudy(ctx context.Context, study domain.Study) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StudySaves++
	if r.FailSaveStudy != nil {
		if err := r.FailSaveStudy(study); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, s := range r.studies {
		if s.ID == study.ID {
			r.studies[i] = study
			return nil
		}
	}
	r.studies = append(r.studies, study)
	return nil
}

// DeleteStudy removes a study by id.
func (r *MemoryRepository) DeleteStudy(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDeleteStudy != nil {
		return r.FailDeleteStudy
	}
	for i, s := range r.studies {
		if s.ID == id {
			r.studies = append(r.studies[:i:i], r.studies[i+1:]...)
			return nil
		}
	}
	return nil
}

// GetAllContrasts returns a copy of every stored contrast.
func (r *MemoryRepository) GetAllContrasts(ctx context.Context) ([]domain.Contrast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailGetAll != nil {
		return nil, r.FailGetAll
	}
	return append([]domain.Contrast{}, r.contrasts...), nil
}

// SaveContrast upserts a contrast by id.
func (r *MemoryRepository) SaveContrast(ctx context.Context, c domain.Contrast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailSaveContrast != nil {
		return r.FailSaveContrast
	}
	for i, existing := range r.contrasts {
		if existing.ID == c.ID {
			r.contrasts[i] = c
			return nil
		}
	}
	r.contrasts = append(r.contrasts, c)
	return nil
}

// DeleteContrast removes a contrast by id.
func (r *MemoryRepository) DeleteContrast(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDeleteContrast != nil {
		return r.FailDeleteContrast
	}
	for i, c := range r.contrasts {
		if c.ID == id {
			r.contrasts = append(r.contrasts[:i:i], r.contrasts[i+1:]...)
			return nil
		}
	}
	return nil
}

// LoadSnapshot returns the stored payload for name, or nil.
func (r *MemoryRepository) LoadSnapshot(ctx context.Context, name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[name], nil
}

// SaveSnapshot stores payload under name.
func (r *MemoryRepository) SaveSnapshot(ctx context.Context, name string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[name] = append([]byte{}, payload...)
	return nil
}

// Study returns the stored study with the given id.
func (r *MemoryRepository) Study(id string) (domain.Study, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.studies {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Study{}, false
}
