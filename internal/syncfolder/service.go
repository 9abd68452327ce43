package syncfolder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/biblemarker/biblemarker/internal/domain"
	"github.com/biblemarker/biblemarker/internal/state"
)

// State is the coarse sync state shown to users.
type State string

// Sync states.
const (
	StateSynced      State = "synced"
	StateSyncing     State = "syncing"
	StateOffline     State = "offline"
	StateError       State = "error"
	StateUnavailable State = "unavailable"
)

// SyncStatus reports sync health.
type SyncStatus struct {
	State          State      `json:"state"`
	Location       string     `json:"location,omitempty"`
	LastSync       *time.Time `json:"last_sync,omitempty"`
	PendingChanges int        `json:"pending_changes"`
	Error          string     `json:"error,omitempty"`
}

// Availability reports whether the sync folder can be reached.
type Availability struct {
	Available bool   `json:"available"`
	Location  string `json:"location,omitempty"`
	Error     string `json:"error,omitempty"`
}

// PushResult summarizes a Push.
type PushResult struct {
	Studies    int       `json:"studies"`
	Contrasts  int       `json:"contrasts"`
	ExportedAt time.Time `json:"exported_at"`
}

// PullResult summarizes a Pull. Applied counts the bundle records that
// replaced or added local records; Skipped counts those that were older than
// or equal to the local copy. ActiveStudyChanged reports that the bundle's
// active study pointer moved the local active study.
type PullResult struct {
	StudiesApplied     int  `json:"studies_applied"`
	StudiesSkipped     int  `json:"studies_skipped"`
	ContrastsApplied   int  `json:"contrasts_applied"`
	ContrastsSkipped   int  `json:"contrasts_skipped"`
	ActiveStudyChanged bool `json:"active_study_changed,omitempty"`
}

// Repository is the persistence the sync service merges pulled records into.
// Its snapshots hold the device's sync Marker.
type Repository interface {
	state.StudyRepository
	state.ContrastRepository
	state.SnapshotStore
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the timestamp source for bundle exports.
func WithClock(c state.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the logger for sync diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service moves both collections between the local stores and a sync
// folder.
//
// Thread-safety: Push and Pull are serialized; Status may run concurrently
// and reports StateSyncing while one is in flight.
type Service struct {
	backend   Backend
	schema    *Schema
	repo      Repository
	studies   *state.StudyStore
	contrasts *state.ContrastStore
	clock     state.Clock
	logger    *slog.Logger

	opMu sync.Mutex

	mu       sync.Mutex
	syncing  bool
	lastSync time.Time
	lastErr  error
}

// NewService wires a sync service. backend may be nil, in which case every
// operation fails with ErrUnavailable and Status reports StateUnavailable.
func NewService(backend Backend, repo Repository, studies *state.StudyStore, contrasts *state.ContrastStore, opts ...Option) (*Service, error) {
	schema, err := LoadSchema()
	if err != nil {
		return nil, err
	}

	s := &Service{
		backend:   backend,
		schema:    schema,
		repo:      repo,
		studies:   studies,
		contrasts: contrasts,
		clock:     state.SystemClock{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Backend returns the configured backend, or nil.
func (s *Service) Backend() Backend {
	return s.backend
}

// Push exports the cached collections as a bundle and writes it to the
// folder, replacing any previous bundle.
func (s *Service) Push(ctx context.Context) (PushResult, error) {
	if s.backend == nil {
		return PushResult{}, fmt.Errorf("push: %w", ErrUnavailable)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.begin()

	bundle := NewBundle(s.clock.Now(), s.studies.ActiveStudyID(), s.studies.Studies(), s.contrasts.Contrasts())
	err := s.writeBundle(ctx, bundle)
	if err == nil {
		err = s.advanceMarker(ctx, bundle.ExportedAt)
	}
	s.finish(bundle.ExportedAt, err)
	if err != nil {
		return PushResult{}, fmt.Errorf("push: %w", err)
	}

	s.logger.Info("bundle pushed",
		"location", s.backend.Location(),
		"studies", len(bundle.Studies),
		"contrasts", len(bundle.Contrasts))
	return PushResult{
		Studies:    len(bundle.Studies),
		Contrasts:  len(bundle.Contrasts),
		ExportedAt: bundle.ExportedAt,
	}, nil
}

func (s *Service) writeBundle(ctx context.Context, b Bundle) error {
	data, err := EncodeBundle(b)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, BundleFileName, data)
}

// Pull reads the folder's bundle, merges it into the repository and reloads
// both stores.
//
// A bundle record replaces the local record with the same id only when its
// UpdatedAt is later. Local records missing from the bundle are kept.
//
// The bundle's active study pointer is applied when the bundle was exported
// after this device's last sync and names a known study or no study.
// Otherwise, if the merge leaves several studies active, the store's choice
// on load is written back so exactly one remains active.
func (s *Service) Pull(ctx context.Context) (PullResult, error) {
	if s.backend == nil {
		return PullResult{}, fmt.Errorf("pull: %w", ErrUnavailable)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.begin()

	res, exportedAt, err := s.pull(ctx)
	s.finish(exportedAt, err)
	if err != nil {
		return PullResult{}, fmt.Errorf("pull: %w", err)
	}

	s.logger.Info("bundle pulled",
		"location", s.backend.Location(),
		"studies_applied", res.StudiesApplied,
		"contrasts_applied", res.ContrastsApplied)
	return res, nil
}

func (s *Service) pull(ctx context.Context) (PullResult, time.Time, error) {
	var res PullResult

	data, err := s.backend.Get(ctx, BundleFileName)
	if err != nil {
		return res, time.Time{}, err
	}
	bundle, err := DecodeBundle(s.schema, data)
	if err != nil {
		return res, time.Time{}, err
	}
	bundle = bundle.Normalize()

	marker, err := s.loadMarker(ctx)
	if err != nil {
		return res, time.Time{}, err
	}

	localStudies, err := s.repo.GetAllStudies(ctx)
	if err != nil {
		return res, time.Time{}, err
	}
	studyTimes := make(map[string]time.Time, len(localStudies))
	for _, st := range localStudies {
		studyTimes[st.ID] = st.UpdatedAt
	}
	for _, st := range bundle.Studies {
		if local, ok := studyTimes[st.ID]; ok && !st.UpdatedAt.After(local) {
			res.StudiesSkipped++
			continue
		}
		if err := s.repo.SaveStudy(ctx, st); err != nil {
			return res, time.Time{}, fmt.Errorf("merge study %s: %w", st.ID, err)
		}
		res.StudiesApplied++
	}

	localContrasts, err := s.repo.GetAllContrasts(ctx)
	if err != nil {
		return res, time.Time{}, err
	}
	contrastTimes := make(map[string]time.Time, len(localContrasts))
	for _, c := range localContrasts {
		contrastTimes[c.ID] = c.UpdatedAt
	}
	for _, c := range bundle.Contrasts {
		if local, ok := contrastTimes[c.ID]; ok && !c.UpdatedAt.After(local) {
			res.ContrastsSkipped++
			continue
		}
		if err := s.repo.SaveContrast(ctx, c); err != nil {
			return res, time.Time{}, fmt.Errorf("merge contrast %s: %w", c.ID, err)
		}
		res.ContrastsApplied++
	}

	if err := s.studies.LoadStudies(ctx); err != nil {
		return res, time.Time{}, err
	}
	if err := s.contrasts.LoadContrasts(ctx); err != nil {
		return res, time.Time{}, err
	}

	target, ok := s.bundleActive(bundle, marker)
	switch {
	case ok:
		if s.studies.ActiveStudyID() != target || countActive(s.studies.Studies()) != activeCount(target) {
			s.logger.Debug("applying bundle active study", "id", target)
			if err := s.studies.SetActiveStudy(ctx, target); err != nil {
				return res, time.Time{}, err
			}
			res.ActiveStudyChanged = true
		}
	case countActive(s.studies.Studies()) > 1:
		activeID := s.studies.ActiveStudyID()
		s.logger.Warn("pulled bundle left several active studies", "keeping", activeID)
		if err := s.studies.SetActiveStudy(ctx, activeID); err != nil {
			return res, time.Time{}, err
		}
	}

	if err := s.advanceMarker(ctx, bundle.ExportedAt); err != nil {
		return res, time.Time{}, err
	}
	return res, bundle.ExportedAt, nil
}

// bundleActive returns the active study id a pulled bundle asks for. ok is
// false when the bundle carries no pointer, is not newer than the marker, or
// names a study this device does not have.
func (s *Service) bundleActive(b Bundle, m Marker) (string, bool) {
	if b.ActiveStudyID == nil || !b.ExportedAt.After(m.LastSync) {
		return "", false
	}
	id := *b.ActiveStudyID
	if id == "" {
		return "", true
	}
	if _, found := s.studies.GetStudy(id); !found {
		s.logger.Warn("bundle active study not found", "id", id)
		return "", false
	}
	return id, true
}

// Status reports the sync state. The folder is checked with a List. The last
// sync time is this process's last sync, then the persisted Marker, then the
// folder bundle's export time. Pending changes are cached records updated
// after the last sync.
func (s *Service) Status(ctx context.Context) SyncStatus {
	if s.backend == nil {
		return SyncStatus{State: StateUnavailable, Error: ErrUnavailable.Error()}
	}
	status := SyncStatus{Location: s.backend.Location()}

	s.mu.Lock()
	syncing, lastSync, lastErr := s.syncing, s.lastSync, s.lastErr
	s.mu.Unlock()

	if syncing {
		status.State = StateSyncing
		return status
	}

	if _, err := s.backend.List(ctx); err != nil {
		status.Error = err.Error()
		if errors.Is(err, ErrUnavailable) {
			status.State = StateUnavailable
		} else {
			status.State = StateOffline
		}
		status.PendingChanges = s.pendingSince(lastSync)
		return status
	}

	if lastSync.IsZero() {
		if m, err := s.loadMarker(ctx); err != nil {
			s.logger.Debug("sync marker unreadable", "error", err)
		} else {
			lastSync = m.LastSync
		}
	}
	if lastSync.IsZero() {
		lastSync = s.remoteExportTime(ctx)
	}
	if !lastSync.IsZero() {
		t := lastSync
		status.LastSync = &t
	}
	status.PendingChanges = s.pendingSince(lastSync)

	if lastErr != nil {
		status.State = StateError
		status.Error = lastErr.Error()
		return status
	}
	status.State = StateSynced
	return status
}

// Check reports whether the sync folder can be reached.
func (s *Service) Check(ctx context.Context) Availability {
	if s.backend == nil {
		return Availability{Error: ErrUnavailable.Error()}
	}
	if _, err := s.backend.List(ctx); err != nil {
		return Availability{Location: s.backend.Location(), Error: err.Error()}
	}
	return Availability{Available: true, Location: s.backend.Location()}
}

// List returns the files in the sync folder.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("list: %w", ErrUnavailable)
	}
	return s.backend.List(ctx)
}

// TestWrite writes, reads back and deletes a test file, proving the folder
// is writable end to end.
func (s *Service) TestWrite(ctx context.Context) error {
	if s.backend == nil {
		return fmt.Errorf("test write: %w", ErrUnavailable)
	}

	name := fmt.Sprintf("biblemarker-test-write-%d.txt", s.clock.Now().UnixNano())
	payload := []byte("biblemarker test write " + s.clock.Now().UTC().Format(time.RFC3339Nano))

	if err := s.backend.Put(ctx, name, payload); err != nil {
		return fmt.Errorf("test write: %w", err)
	}
	got, err := s.backend.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("test write: read back: %w", err)
	}
	if string(got) != string(payload) {
		return fmt.Errorf("test write: read back %d bytes, wrote %d", len(got), len(payload))
	}
	if err := s.backend.Delete(ctx, name); err != nil {
		return fmt.Errorf("test write: cleanup: %w", err)
	}

	s.logger.Debug("test write succeeded", "location", s.backend.Location(), "file", name)
	return nil
}

func (s *Service) begin() {
	s.mu.Lock()
	s.syncing = true
	s.mu.Unlock()
}

func (s *Service) finish(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	s.lastErr = err
	if err == nil && !at.IsZero() {
		s.lastSync = at
	}
}

// remoteExportTime returns the ExportedAt of the folder's bundle, or zero.
func (s *Service) remoteExportTime(ctx context.Context) time.Time {
	data, err := s.backend.Get(ctx, BundleFileName)
	if err != nil {
		return time.Time{}
	}
	b, err := DecodeBundle(s.schema, data)
	if err != nil {
		s.logger.Debug("folder bundle unreadable", "error", err)
		return time.Time{}
	}
	return b.ExportedAt
}

func (s *Service) pendingSince(since time.Time) int {
	n := 0
	for _, st := range s.studies.Studies() {
		if st.UpdatedAt.After(since) {
			n++
		}
	}
	for _, c := range s.contrasts.Contrasts() {
		if c.UpdatedAt.After(since) {
			n++
		}
	}
	return n
}

func activeCount(id string) int {
	if id == "" {
		return 0
	}
	return 1
}

func countActive(studies []domain.Study) int {
	n := 0
	for _, st := range studies {
		if st.IsActive {
			n++
		}
	}
	return n
}
