package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// StudyStore caches the study collection and enforces the single-active-study
// invariant.
//
// Thread-safety: all methods are safe for concurrent use. Repository calls
// run outside the lock; the cache is committed after they succeed.
type StudyStore struct {
	repo StudyRepository
	cfg  storeConfig

	mu            sync.RWMutex
	studies       []domain.Study
	activeStudyID string
}

// NewStudyStore creates an empty store over repo. The cache is not loaded;
// call LoadStudies (and Restore, when snapshots are configured).
func NewStudyStore(repo StudyRepository, opts ...Option) *StudyStore {
	return &StudyStore{
		repo:    repo,
		cfg:     buildConfig(opts),
		studies: []domain.Study{},
	}
}

// Restore applies the persisted snapshot, recovering the active study id from
// the previous session. It is a no-op without a SnapshotStore.
func (s *StudyStore) Restore(ctx context.Context) error {
	if s.cfg.snapshots == nil {
		return nil
	}

	payload, err := s.cfg.snapshots.LoadSnapshot(ctx, StudySnapshotName)
	if err != nil {
		return fmt.Errorf("restore studies: %w", err)
	}
	snap, err := DecodeStudySnapshot(payload)
	if err != nil {
		return fmt.Errorf("restore studies: %w", err)
	}

	s.mu.Lock()
	s.activeStudyID = snap.ActiveStudyID
	s.mu.Unlock()
	return nil
}

// LoadStudies replaces the cache with every study from the repository and
// derives the active study id from the loaded records. The snapshot is saved
// when the derived id differs from the cached one, so a store that ran Restore
// only writes a stale snapshot.
//
// When several loaded studies are flagged active, the most recently updated
// one becomes the active study. The records themselves are not rewritten.
func (s *StudyStore) LoadStudies(ctx context.Context) error {
	studies, err := s.repo.GetAllStudies(ctx)
	if err != nil {
		return fmt.Errorf("load studies: %w", err)
	}

	activeID := ""
	activeIdx := -1
	for i, st := range studies {
		if !st.IsActive {
			continue
		}
		if activeIdx < 0 || st.UpdatedAt.After(studies[activeIdx].UpdatedAt) {
			activeIdx = i
			activeID = st.ID
		}
	}

	s.mu.Lock()
	s.studies = append([]domain.Study{}, studies...)
	changed := s.activeStudyID != activeID
	s.activeStudyID = activeID
	s.mu.Unlock()

	s.cfg.logger.Debug("studies loaded", "count", len(studies), "active", activeID)
	if changed {
		s.saveSnapshot(ctx, activeID)
	}
	return nil
}

// SetActiveStudy makes studyID the only active study. An empty id
// deactivates every study. Every study is persisted, changed or not, before
// the cache is committed.
//
// An id matching no study deactivates everything and is still recorded as the
// active id, so GetActiveStudy returns nil.
func (s *StudyStore) SetActiveStudy(ctx context.Context, studyID string) error {
	s.mu.RLock()
	updated := make([]domain.Study, len(s.studies))
	for i, st := range s.studies {
		st.IsActive = studyID != "" && st.ID == studyID
		updated[i] = st
	}
	s.mu.RUnlock()

	if err := s.writeStudies(ctx, updated); err != nil {
		return fmt.Errorf("set active study: %w", err)
	}

	s.mu.Lock()
	s.commitLocked(updated)
	s.activeStudyID = studyID
	s.mu.Unlock()

	s.cfg.logger.Debug("active study set", "id", studyID, "persisted", len(updated))
	s.saveSnapshot(ctx, studyID)
	return nil
}

// CreateStudy persists a new inactive study and appends it to the cache.
func (s *StudyStore) CreateStudy(ctx context.Context, name, book string) (domain.Study, error) {
	name = domain.NormalizeText(name)
	if name == "" {
		return domain.Study{}, fmt.Errorf("create study: %w: name is required", ErrInvalidStudy)
	}

	now := s.cfg.clock.Now()
	study := domain.Study{
		ID:        s.cfg.ids.Generate(),
		Name:      name,
		Book:      domain.NormalizeText(book),
		IsActive:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.SaveStudy(ctx, study); err != nil {
		return domain.Study{}, fmt.Errorf("create study: %w", err)
	}

	s.mu.Lock()
	s.studies = append(s.studies, study)
	s.mu.Unlock()

	s.cfg.logger.Debug("study created", "id", study.ID, "name", study.Name)
	return study, nil
}

// UpdateStudy stamps UpdatedAt, persists the study and replaces the cached
// entry with the same id.
//
// Exclusivity holds here too: an active study deactivates every other active
// study in the same write, and deactivating the current active study clears
// the active id.
func (s *StudyStore) UpdateStudy(ctx context.Context, study domain.Study) (domain.Study, error) {
	study.Name = domain.NormalizeText(study.Name)
	study.Book = domain.NormalizeText(study.Book)
	if study.Name == "" {
		return domain.Study{}, fmt.Errorf("update study: %w: name is required", ErrInvalidStudy)
	}
	study.UpdatedAt = s.cfg.clock.Now()

	s.mu.RLock()
	if indexOfStudy(s.studies, study.ID) < 0 {
		s.mu.RUnlock()
		return domain.Study{}, fmt.Errorf("update study %s: %w", study.ID, ErrNotFound)
	}
	writes := []domain.Study{study}
	if study.IsActive {
		for _, st := range s.studies {
			if st.ID != study.ID && st.IsActive {
				st.IsActive = false
				writes = append(writes, st)
			}
		}
	}
	s.mu.RUnlock()

	var err error
	if len(writes) == 1 {
		err = s.repo.SaveStudy(ctx, study)
	} else {
		err = s.writeStudies(ctx, writes)
	}
	if err != nil {
		return domain.Study{}, fmt.Errorf("update study: %w", err)
	}

	s.mu.Lock()
	s.commitLocked(writes)
	prevActive := s.activeStudyID
	switch {
	case study.IsActive:
		s.activeStudyID = study.ID
	case s.activeStudyID == study.ID:
		s.activeStudyID = ""
	}
	activeID := s.activeStudyID
	s.mu.Unlock()

	s.cfg.logger.Debug("study updated", "id", study.ID, "deactivated", len(writes)-1)
	if activeID != prevActive {
		s.saveSnapshot(ctx, activeID)
	}
	return study, nil
}

// DeleteStudy removes a study from the repository and the cache, clearing the
// active id if it pointed at the deleted study.
func (s *StudyStore) DeleteStudy(ctx context.Context, studyID string) error {
	if err := s.repo.DeleteStudy(ctx, studyID); err != nil {
		return fmt.Errorf("delete study: %w", err)
	}

	s.mu.Lock()
	if idx := indexOfStudy(s.studies, studyID); idx >= 0 {
		s.studies = append(s.studies[:idx:idx], s.studies[idx+1:]...)
	}
	cleared := s.activeStudyID == studyID
	if cleared {
		s.activeStudyID = ""
	}
	s.mu.Unlock()

	s.cfg.logger.Debug("study deleted", "id", studyID, "cleared_active", cleared)
	if cleared {
		s.saveSnapshot(ctx, "")
	}
	return nil
}

// GetActiveStudy returns the active study, or nil if none is set or the id
// is not in the cache.
func (s *StudyStore) GetActiveStudy() *domain.Study {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.activeStudyID == "" {
		return nil
	}
	idx := indexOfStudy(s.studies, s.activeStudyID)
	if idx < 0 {
		return nil
	}
	study := s.studies[idx]
	return &study
}

// ActiveStudyID returns the active study id ("" when none).
func (s *StudyStore) ActiveStudyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeStudyID
}

// GetStudy returns the cached study with the given id.
func (s *StudyStore) GetStudy(id string) (domain.Study, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexOfStudy(s.studies, id)
	if idx < 0 {
		return domain.Study{}, false
	}
	return s.studies[idx], true
}

// Studies returns a copy of the cached collection in insertion order.
func (s *StudyStore) Studies() []domain.Study {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Study{}, s.studies...)
}

// Snapshot returns the persisted subset of the store.
func (s *StudyStore) Snapshot() StudySnapshot {
	return PersistStudyState(s.ActiveStudyID())
}

// writeStudies persists several studies. A StudyBatchSaver commits them
// all-or-nothing; otherwise they are written in parallel and the first
// failure cancels the rest.
func (s *StudyStore) writeStudies(ctx context.Context, studies []domain.Study) error {
	if batch, ok := s.repo.(StudyBatchSaver); ok {
		return batch.SaveStudies(ctx, studies)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, st := range studies {
		g.Go(func() error {
			if err := s.repo.SaveStudy(gctx, st); err != nil {
				return fmt.Errorf("save study %s: %w", st.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// commitLocked replaces cached entries by id with the written versions.
// Entries added since the writes were prepared are kept. Caller holds s.mu.
func (s *StudyStore) commitLocked(written []domain.Study) {
	byID := make(map[string]domain.Study, len(written))
	for _, st := range written {
		byID[st.ID] = st
	}
	for i, st := range s.studies {
		if w, ok := byID[st.ID]; ok {
			s.studies[i] = w
		}
	}
}

// saveSnapshot writes the persisted subset. Failures are logged, not
// returned: the records are already durable and LoadStudies re-derives the
// active id from them.
func (s *StudyStore) saveSnapshot(ctx context.Context, activeID string) {
	if s.cfg.snapshots == nil {
		return
	}
	payload, err := json.Marshal(PersistStudyState(activeID))
	if err != nil {
		s.cfg.logger.Warn("encode study snapshot", "error", err)
		return
	}
	if err := s.cfg.snapshots.SaveSnapshot(ctx, StudySnapshotName, payload); err != nil {
		s.cfg.logger.Warn("save study snapshot", "error", err)
	}
}

func indexOfStudy(studies []domain.Study, id string) int {
	for i, st := range studies {
		if st.ID == id {
			return i
		}
	}
	return -1
}
