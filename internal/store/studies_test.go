package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/biblemarker/biblemarker/internal/domain"
)

func TestGetAllStudies_Empty(t *testing.T) {
	s := createTestStore(t)

	studies, err := s.GetAllStudies(context.Background())
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if studies == nil {
		t.Error("GetAllStudies() returned nil, want empty slice")
	}
	if len(studies) != 0 {
		t.Errorf("len = %d, want 0", len(studies))
	}
}

func TestSaveStudy_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	study := createTestStudy("study-1", "Genesis Study", 0)
	study.Book = "Genesis"
	study.IsActive = true
	study.UpdatedAt = testTime(30).Add(123 * time.Nanosecond)

	if err := s.SaveStudy(ctx, study); err != nil {
		t.Fatalf("SaveStudy() failed: %v", err)
	}

	studies, err := s.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("len = %d, want 1", len(studies))
	}

	got := studies[0]
	if got.ID != study.ID || got.Name != study.Name || got.Book != study.Book {
		t.Errorf("got %+v, want %+v", got, study)
	}
	if !got.IsActive {
		t.Error("IsActive = false, want true")
	}
	if !got.CreatedAt.Equal(study.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, study.CreatedAt)
	}
	if !got.UpdatedAt.Equal(study.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v (nanoseconds must survive)", got.UpdatedAt, study.UpdatedAt)
	}
}

func TestSaveStudy_Upsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	study := createTestStudy("study-1", "Draft", 0)
	if err := s.SaveStudy(ctx, study); err != nil {
		t.Fatalf("first SaveStudy() failed: %v", err)
	}

	study.Name = "Final"
	study.Book = "Exodus"
	if err := s.SaveStudy(ctx, study); err != nil {
		t.Fatalf("second SaveStudy() failed: %v", err)
	}

	studies, err := s.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("len = %d, want 1 (upsert must not duplicate)", len(studies))
	}
	if studies[0].Name != "Final" || studies[0].Book != "Exodus" {
		t.Errorf("got %+v, want updated name and book", studies[0])
	}
}

func TestGetAllStudies_OrderedByCreation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Insert out of order
	for _, st := range []struct {
		id     string
		offset int
	}{{"c", 20}, {"a", 0}, {"b", 10}} {
		if err := s.SaveStudy(ctx, createTestStudy(st.id, st.id, st.offset)); err != nil {
			t.Fatalf("SaveStudy(%s) failed: %v", st.id, err)
		}
	}

	studies, err := s.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if studies[i].ID != id {
			t.Errorf("studies[%d].ID = %q, want %q", i, studies[i].ID, id)
		}
	}
}

func TestSaveStudies_Batch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestStudy("a", "A", 0)
	b := createTestStudy("b", "B", 1)
	b.IsActive = true

	if err := s.SaveStudies(ctx, []domain.Study{a, b}); err != nil {
		t.Fatalf("SaveStudies() failed: %v", err)
	}

	studies, err := s.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if len(studies) != 2 {
		t.Fatalf("len = %d, want 2", len(studies))
	}
	if studies[0].IsActive || !studies[1].IsActive {
		t.Errorf("active flags = %v/%v, want false/true", studies[0].IsActive, studies[1].IsActive)
	}
}

func TestSaveStudies_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestStudy("a", "A", 0)
	a.IsActive = true
	if err := s.SaveStudy(ctx, a); err != nil {
		t.Fatalf("SaveStudy() failed: %v", err)
	}

	// Reject the second row of the batch after the first has been written.
	_, err := s.db.Exec(`
		CREATE TRIGGER reject_b BEFORE INSERT ON studies
		WHEN NEW.id = 'b'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END
	`)
	if err != nil {
		t.Fatalf("create trigger failed: %v", err)
	}

	deactivated := a
	deactivated.IsActive = false
	bad := createTestStudy("b", "B", 1)

	if err := s.SaveStudies(ctx, []domain.Study{deactivated, bad}); err == nil {
		t.Fatal("SaveStudies() succeeded, want trigger error")
	}

	studies, err := s.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("len = %d, want 1 (batch must not partially apply)", len(studies))
	}
	if !studies[0].IsActive {
		t.Error("study a was deactivated by a failed batch")
	}
}

func TestDeleteStudy(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveStudy(ctx, createTestStudy("a", "A", 0)); err != nil {
		t.Fatalf("SaveStudy() failed: %v", err)
	}
	if err := s.DeleteStudy(ctx, "a"); err != nil {
		t.Fatalf("DeleteStudy() failed: %v", err)
	}

	studies, err := s.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if len(studies) != 0 {
		t.Errorf("len = %d, want 0", len(studies))
	}

	// Missing ids are a no-op
	if err := s.DeleteStudy(ctx, "missing"); err != nil {
		t.Errorf("DeleteStudy(missing) failed: %v", err)
	}
}

func TestStudies_SurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s1.SaveStudy(ctx, createTestStudy("a", "Genesis Study", 0)); err != nil {
		t.Fatalf("SaveStudy() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	studies, err := s2.GetAllStudies(ctx)
	if err != nil {
		t.Fatalf("GetAllStudies() failed: %v", err)
	}
	if len(studies) != 1 || studies[0].Name != "Genesis Study" {
		t.Errorf("got %+v, want one study named Genesis Study", studies)
	}
}

func TestCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.SaveStudy(ctx, createTestStudy("a", "A", 0)); err != nil {
		t.Fatalf("SaveStudy() failed: %v", err)
	}
	for i, id := range []string{"c1", "c2"} {
		if err := s.SaveContrast(ctx, createTestContrast(id, "John", 1, 5, i)); err != nil {
			t.Fatalf("SaveContrast() failed: %v", err)
		}
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() failed: %v", err)
	}
	if counts.Studies != 1 || counts.Contrasts != 2 {
		t.Errorf("Counts() = %+v, want 1 study and 2 contrasts", counts)
	}
}
