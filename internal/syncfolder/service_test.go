package syncfolder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biblemarker/biblemarker/internal/domain"
	"github.com/biblemarker/biblemarker/internal/state"
	"github.com/biblemarker/biblemarker/internal/store"
	"github.com/biblemarker/biblemarker/internal/testutil"
)

// device is one installation: its own database and stores, sharing a
// sync folder with other devices.
type device struct {
	db        *store.Store
	studies   *state.StudyStore
	contrasts *state.ContrastStore
	sync      *Service
}

func newDevice(t *testing.T, backend Backend, idPrefix string) *device {
	t.Helper()

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := testutil.NewDeterministicClock()
	opts := []state.Option{
		state.WithClock(clock),
		state.WithIDGenerator(testutil.NewSequentialIDs(idPrefix)),
	}
	d := &device{
		db:        db,
		studies:   state.NewStudyStore(db, opts...),
		contrasts: state.NewContrastStore(db, opts...),
	}
	d.sync, err = NewService(backend, db, d.studies, d.contrasts, WithClock(clock))
	require.NoError(t, err)
	return d
}

func sharedFolder(t *testing.T) *FSBackend {
	t.Helper()
	b, err := NewFSBackend(filepath.Join(t.TempDir(), "iCloud", "Documents"))
	require.NoError(t, err)
	return b
}

func TestPushPull_RoundTrip(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	laptop := newDevice(t, folder, "laptop")
	s, err := laptop.studies.CreateStudy(ctx, "Genesis Study", "Genesis")
	require.NoError(t, err)
	require.NoError(t, laptop.studies.SetActiveStudy(ctx, s.ID))
	c, err := laptop.contrasts.CreateContrast(ctx, state.ContrastInput{
		ItemA: "light", ItemB: "darkness",
		VerseRef: domain.VerseRef{Book: "John", Chapter: 1, Verse: 5},
	})
	require.NoError(t, err)

	pushed, err := laptop.sync.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pushed.Studies)
	assert.Equal(t, 1, pushed.Contrasts)

	phone := newDevice(t, folder, "phone")
	pulled, err := phone.sync.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, PullResult{StudiesApplied: 1, ContrastsApplied: 1}, pulled)

	require.NotNil(t, phone.studies.GetActiveStudy())
	assert.Equal(t, s.ID, phone.studies.GetActiveStudy().ID)
	got, ok := phone.contrasts.GetContrast(c.ID)
	require.True(t, ok)
	assert.Equal(t, "darkness", got.ItemB)

	// Records are durable on the pulling device, not just cached
	counts, err := phone.db.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Counts{Studies: 1, Contrasts: 1}, counts)
}

func TestPull_LastWriterWins(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	laptop := newDevice(t, folder, "laptop")
	s, err := laptop.studies.CreateStudy(ctx, "Draft", "")
	require.NoError(t, err)
	_, err = laptop.sync.Push(ctx)
	require.NoError(t, err)

	phone := newDevice(t, folder, "phone")
	_, err = phone.sync.Pull(ctx)
	require.NoError(t, err)

	// Phone edits after the push; pulling the same bundle again must not
	// revert the newer local edit.
	local, _ := phone.studies.GetStudy(s.ID)
	local.Name = "Phone Edit"
	for i := 0; i < 5; i++ {
		local, err = phone.studies.UpdateStudy(ctx, local)
		require.NoError(t, err)
	}

	res, err := phone.sync.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StudiesSkipped)
	assert.Equal(t, 0, res.StudiesApplied)

	kept, _ := phone.studies.GetStudy(s.ID)
	assert.Equal(t, "Phone Edit", kept.Name)
}

func TestPull_KeepsLocalOnlyRecords(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	laptop := newDevice(t, folder, "laptop")
	_, err := laptop.studies.CreateStudy(ctx, "Remote", "")
	require.NoError(t, err)
	_, err = laptop.sync.Push(ctx)
	require.NoError(t, err)

	phone := newDevice(t, folder, "phone")
	_, err = phone.studies.CreateStudy(ctx, "Local", "")
	require.NoError(t, err)
	_, err = phone.sync.Pull(ctx)
	require.NoError(t, err)

	assert.Len(t, phone.studies.Studies(), 2)
}

func TestPull_RestoresExclusiveActive(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	laptop := newDevice(t, folder, "laptop")
	remote, err := laptop.studies.CreateStudy(ctx, "Remote", "")
	require.NoError(t, err)
	require.NoError(t, laptop.studies.SetActiveStudy(ctx, remote.ID))

	phone := newDevice(t, folder, "phone")
	local, err := phone.studies.CreateStudy(ctx, "Local", "")
	require.NoError(t, err)
	require.NoError(t, phone.studies.SetActiveStudy(ctx, local.ID))

	_, err = laptop.sync.Push(ctx)
	require.NoError(t, err)

	res, err := phone.sync.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, res.ActiveStudyChanged)

	assertOnlyActive(t, phone, remote.ID)
}

func TestPull_LegacyBundleKeepsNewestActive(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	phone := newDevice(t, folder, "phone")
	local, err := phone.studies.CreateStudy(ctx, "Local", "")
	require.NoError(t, err)
	require.NoError(t, phone.studies.SetActiveStudy(ctx, local.ID))

	later := local.UpdatedAt.Add(time.Hour)
	bundle := NewBundle(later, "", []domain.Study{
		{ID: "remote", Name: "Remote", IsActive: true, CreatedAt: later, UpdatedAt: later},
	}, nil)
	bundle.ActiveStudyID = nil
	data, err := EncodeBundle(bundle)
	require.NoError(t, err)
	require.NotContains(t, string(data), "active_study_id")
	require.NoError(t, folder.Put(ctx, BundleFileName, data))

	res, err := phone.sync.Pull(ctx)
	require.NoError(t, err)
	assert.False(t, res.ActiveStudyChanged)

	assertOnlyActive(t, phone, "remote")
}

func TestPull_AppliesActivationChange(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	laptop := newDevice(t, folder, "laptop")
	first, err := laptop.studies.CreateStudy(ctx, "Genesis", "")
	require.NoError(t, err)
	second, err := laptop.studies.CreateStudy(ctx, "Exodus", "")
	require.NoError(t, err)
	require.NoError(t, laptop.studies.SetActiveStudy(ctx, first.ID))
	_, err = laptop.sync.Push(ctx)
	require.NoError(t, err)

	phone := newDevice(t, folder, "phone")
	_, err = phone.sync.Pull(ctx)
	require.NoError(t, err)
	assertOnlyActive(t, phone, first.ID)

	t.Run("switch", func(t *testing.T) {
		require.NoError(t, laptop.studies.SetActiveStudy(ctx, second.ID))
		_, err := laptop.sync.Push(ctx)
		require.NoError(t, err)

		res, err := phone.sync.Pull(ctx)
		require.NoError(t, err)
		assert.Equal(t, PullResult{StudiesSkipped: 2, ActiveStudyChanged: true}, res)
		assertOnlyActive(t, phone, second.ID)
	})

	t.Run("deactivate", func(t *testing.T) {
		require.NoError(t, laptop.studies.SetActiveStudy(ctx, ""))
		_, err := laptop.sync.Push(ctx)
		require.NoError(t, err)

		res, err := phone.sync.Pull(ctx)
		require.NoError(t, err)
		assert.True(t, res.ActiveStudyChanged)
		assertOnlyActive(t, phone, "")
	})
}

func TestPull_StaleBundleKeepsLocalActivation(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()

	laptop := newDevice(t, folder, "laptop")
	first, err := laptop.studies.CreateStudy(ctx, "Genesis", "")
	require.NoError(t, err)
	second, err := laptop.studies.CreateStudy(ctx, "Exodus", "")
	require.NoError(t, err)
	require.NoError(t, laptop.studies.SetActiveStudy(ctx, first.ID))
	pushed, err := laptop.sync.Push(ctx)
	require.NoError(t, err)

	phone := newDevice(t, folder, "phone")
	_, err = phone.sync.Pull(ctx)
	require.NoError(t, err)
	require.NoError(t, phone.studies.SetActiveStudy(ctx, second.ID))

	// A new service over the same database reads the persisted marker
	restarted, err := NewService(folder, phone.db, phone.studies, phone.contrasts)
	require.NoError(t, err)

	status := restarted.Status(ctx)
	require.NotNil(t, status.LastSync)
	assert.True(t, pushed.ExportedAt.Equal(*status.LastSync))

	res, err := restarted.Pull(ctx)
	require.NoError(t, err)
	assert.False(t, res.ActiveStudyChanged)
	assertOnlyActive(t, phone, second.ID)
}

func TestPush_AdvancesMarker(t *testing.T) {
	d := newDevice(t, sharedFolder(t), "m")
	ctx := context.Background()

	m, err := d.sync.loadMarker(ctx)
	require.NoError(t, err)
	assert.True(t, m.LastSync.IsZero())

	pushed, err := d.sync.Push(ctx)
	require.NoError(t, err)

	m, err = d.sync.loadMarker(ctx)
	require.NoError(t, err)
	assert.True(t, pushed.ExportedAt.Equal(m.LastSync))

	require.NoError(t, d.sync.advanceMarker(ctx, pushed.ExportedAt.Add(-time.Hour)))
	m, err = d.sync.loadMarker(ctx)
	require.NoError(t, err)
	assert.True(t, pushed.ExportedAt.Equal(m.LastSync), "an older time does not move the marker back")
}

// assertOnlyActive checks the cache and the database agree that id is the
// only active study. An empty id means none is active.
func assertOnlyActive(t *testing.T, d *device, id string) {
	t.Helper()

	if id == "" {
		assert.Nil(t, d.studies.GetActiveStudy())
	} else if assert.NotNil(t, d.studies.GetActiveStudy()) {
		assert.Equal(t, id, d.studies.GetActiveStudy().ID)
	}

	studies, err := d.db.GetAllStudies(context.Background())
	require.NoError(t, err)
	var active []string
	for _, st := range studies {
		if st.IsActive {
			active = append(active, st.ID)
		}
	}
	if id == "" {
		assert.Empty(t, active)
	} else {
		assert.Equal(t, []string{id}, active)
	}
}

func TestPull_NoBundle(t *testing.T) {
	phone := newDevice(t, sharedFolder(t), "phone")

	_, err := phone.sync.Pull(context.Background())
	require.ErrorIs(t, err, ErrNotExist)
	assert.Equal(t, StateError, phone.sync.Status(context.Background()).State)
}

func TestPull_InvalidBundleLeavesStoresUntouched(t *testing.T) {
	folder := sharedFolder(t)
	ctx := context.Background()
	require.NoError(t, folder.Put(ctx, BundleFileName, []byte(`{"format_version": 9}`)))

	phone := newDevice(t, folder, "phone")
	_, err := phone.studies.CreateStudy(ctx, "Local", "")
	require.NoError(t, err)

	_, err = phone.sync.Pull(ctx)
	require.ErrorIs(t, err, ErrInvalidBundle)
	assert.Len(t, phone.studies.Studies(), 1)
}

func TestService_NoBackend(t *testing.T) {
	d := newDevice(t, nil, "x")
	ctx := context.Background()

	_, err := d.sync.Push(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = d.sync.Pull(ctx)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, d.sync.TestWrite(ctx), ErrUnavailable)
	_, err = d.sync.List(ctx)
	require.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, StateUnavailable, d.sync.Status(ctx).State)
	assert.False(t, d.sync.Check(ctx).Available)
}

func TestStatus_States(t *testing.T) {
	ctx := context.Background()

	t.Run("synced after push", func(t *testing.T) {
		d := newDevice(t, sharedFolder(t), "a")
		_, err := d.studies.CreateStudy(ctx, "A", "")
		require.NoError(t, err)

		before := d.sync.Status(ctx)
		assert.Equal(t, StateSynced, before.State)
		assert.Nil(t, before.LastSync)
		assert.Equal(t, 1, before.PendingChanges)

		pushed, err := d.sync.Push(ctx)
		require.NoError(t, err)

		after := d.sync.Status(ctx)
		assert.Equal(t, StateSynced, after.State)
		require.NotNil(t, after.LastSync)
		assert.True(t, pushed.ExportedAt.Equal(*after.LastSync))
		assert.Equal(t, 0, after.PendingChanges)

		_, err = d.studies.CreateStudy(ctx, "B", "")
		require.NoError(t, err)
		assert.Equal(t, 1, d.sync.Status(ctx).PendingChanges)
	})

	t.Run("last sync from folder bundle", func(t *testing.T) {
		folder := sharedFolder(t)
		writer := newDevice(t, folder, "w")
		pushed, err := writer.sync.Push(ctx)
		require.NoError(t, err)

		reader := newDevice(t, folder, "r")
		status := reader.sync.Status(ctx)
		require.NotNil(t, status.LastSync)
		assert.True(t, pushed.ExportedAt.Equal(*status.LastSync))
	})

	t.Run("unavailable when folder removed", func(t *testing.T) {
		folder := sharedFolder(t)
		d := newDevice(t, folder, "u")
		require.NoError(t, os.RemoveAll(folder.Root()))

		status := d.sync.Status(ctx)
		assert.Equal(t, StateUnavailable, status.State)
		assert.NotEmpty(t, status.Error)
	})

	t.Run("offline when backend unreachable", func(t *testing.T) {
		fake := newFakeS3()
		fake.failAll = errors.New("dial tcp: no route to host")
		d := newDevice(t, newS3Backend(fake, "marks", ""), "o")

		status := d.sync.Status(ctx)
		assert.Equal(t, StateOffline, status.State)
		assert.Contains(t, status.Error, "no route to host")
		assert.False(t, d.sync.Check(ctx).Available)
	})

	t.Run("error after failed push", func(t *testing.T) {
		fake := newFakeS3()
		d := newDevice(t, newS3Backend(fake, "marks", ""), "e")

		fake.failAll = errors.New("access denied")
		_, err := d.sync.Push(ctx)
		require.Error(t, err)

		fake.failAll = nil
		status := d.sync.Status(ctx)
		assert.Equal(t, StateError, status.State)
		assert.Contains(t, status.Error, "access denied")

		_, err = d.sync.Push(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateSynced, d.sync.Status(ctx).State, "a successful sync clears the error")
	})
}

func TestTestWrite(t *testing.T) {
	folder := sharedFolder(t)
	d := newDevice(t, folder, "t")
	ctx := context.Background()

	require.NoError(t, d.sync.TestWrite(ctx))

	entries, err := folder.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "test file is cleaned up")

	avail := d.sync.Check(ctx)
	assert.True(t, avail.Available)
	assert.Equal(t, folder.Root(), avail.Location)
}

func TestPushPull_S3(t *testing.T) {
	fake := newFakeS3()
	backend := newS3Backend(fake, "marks", "biblemarker")
	ctx := context.Background()

	laptop := newDevice(t, backend, "laptop")
	_, err := laptop.studies.CreateStudy(ctx, "Genesis", "")
	require.NoError(t, err)
	_, err = laptop.sync.Push(ctx)
	require.NoError(t, err)
	assert.Contains(t, fake.objects, "biblemarker/"+BundleFileName)

	phone := newDevice(t, backend, "phone")
	_, err = phone.sync.Pull(ctx)
	require.NoError(t, err)
	assert.Len(t, phone.studies.Studies(), 1)

	entries, err := phone.sync.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, BundleFileName, entries[0].Name)
}
