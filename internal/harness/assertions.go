package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/biblemarker/biblemarker/internal/domain"
	"github.com/biblemarker/biblemarker/internal/state"
	"github.com/biblemarker/biblemarker/internal/store"
)

// AssertionContext provides access to the stores for assertion evaluation.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Studies   *state.StudyStore
	Contrasts *state.ContrastStore
	Aliases   map[string]string
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertActiveStudy:
		return assertActiveStudy(a, actx)
	case AssertStudyCount:
		return assertStudyCount(a, actx)
	case AssertStudyField:
		return assertStudyField(a, actx)
	case AssertContrastField:
		return assertContrastField(a, actx)
	case AssertContrastsByVerse:
		ref, err := domain.ParseVerseRef(a.Verse)
		if err != nil {
			return fmt.Errorf("contrasts_by_verse: %w", err)
		}
		return assertContrastIDs(a.Type, a.Contrasts, actx.Contrasts.GetContrastsByVerse(ref), actx)
	case AssertContrastsByBook:
		return assertContrastIDs(a.Type, a.Contrasts, actx.Contrasts.GetContrastsByBook(a.Book), actx)
	case AssertExclusiveActive:
		return assertExclusiveActive(actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertActiveStudy checks the active study pointer. An empty study expects
// no active study.
func assertActiveStudy(a Assertion, actx *AssertionContext) error {
	want := resolveAlias(a.Study, actx.Aliases)

	got := ""
	if active := actx.Studies.GetActiveStudy(); active != nil {
		got = active.ID
	}
	if got != want {
		return &AssertionError{
			Type:     AssertActiveStudy,
			Expected: orNone(want),
			Actual:   orNone(got),
		}
	}
	return nil
}

func assertStudyCount(a Assertion, actx *AssertionContext) error {
	got := len(actx.Studies.Studies())
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertStudyCount,
			Expected: fmt.Sprintf("%d studies", *a.Count),
			Actual:   fmt.Sprintf("%d studies", got),
		}
	}
	return nil
}

func assertStudyField(a Assertion, actx *AssertionContext) error {
	id := resolveAlias(a.Study, actx.Aliases)
	s, ok := actx.Studies.GetStudy(id)
	if !ok {
		return &AssertionError{
			Type:     AssertStudyField,
			Expected: fmt.Sprintf("study %s", id),
			Actual:   "not in cache",
		}
	}

	got, err := studyField(s, a.Field)
	if err != nil {
		return err
	}
	return compareField(AssertStudyField, id, a.Field, got, a.Value)
}

func assertContrastField(a Assertion, actx *AssertionContext) error {
	id := resolveAlias(a.Contrast, actx.Aliases)
	c, ok := actx.Contrasts.GetContrast(id)
	if !ok {
		return &AssertionError{
			Type:     AssertContrastField,
			Expected: fmt.Sprintf("contrast %s", id),
			Actual:   "not in cache",
		}
	}

	got, err := contrastField(c, a.Field)
	if err != nil {
		return err
	}
	return compareField(AssertContrastField, id, a.Field, got, a.Value)
}

// assertContrastIDs compares query results by id, in order.
func assertContrastIDs(kind string, want []string, got []domain.Contrast, actx *AssertionContext) error {
	wantIDs := make([]string, len(want))
	for i, w := range want {
		wantIDs[i] = resolveAlias(w, actx.Aliases)
	}
	gotIDs := make([]string, len(got))
	for i, c := range got {
		gotIDs[i] = c.ID
	}

	if strings.Join(wantIDs, ",") != strings.Join(gotIDs, ",") {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%v", wantIDs),
			Actual:   fmt.Sprintf("%v", gotIDs),
		}
	}
	return nil
}

// assertExclusiveActive checks that at most one study is active, both in
// the cache and in the database.
func assertExclusiveActive(actx *AssertionContext) error {
	cached := activeIDs(actx.Studies.Studies())
	if len(cached) > 1 {
		return &AssertionError{
			Type:     AssertExclusiveActive,
			Expected: "at most one active study in cache",
			Actual:   fmt.Sprintf("active: %v", cached),
		}
	}

	stored, err := actx.Store.GetAllStudies(actx.Ctx)
	if err != nil {
		return fmt.Errorf("exclusive_active: %w", err)
	}
	durable := activeIDs(stored)
	if len(durable) > 1 {
		return &AssertionError{
			Type:     AssertExclusiveActive,
			Expected: "at most one active study in database",
			Actual:   fmt.Sprintf("active: %v", durable),
		}
	}
	return nil
}

func activeIDs(studies []domain.Study) []string {
	var ids []string
	for _, s := range studies {
		if s.IsActive {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func studyField(s domain.Study, field string) (string, error) {
	switch field {
	case "id":
		return s.ID, nil
	case "name":
		return s.Name, nil
	case "book":
		return s.Book, nil
	case "is_active":
		return fmt.Sprint(s.IsActive), nil
	case "created_at":
		return s.CreatedAt.Format(time.RFC3339Nano), nil
	case "updated_at":
		return s.UpdatedAt.Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("study_field: unknown field %q", field)
	}
}

func contrastField(c domain.Contrast, field string) (string, error) {
	switch field {
	case "id":
		return c.ID, nil
	case "item_a":
		return c.ItemA, nil
	case "item_b":
		return c.ItemB, nil
	case "verse":
		return c.VerseRef.String(), nil
	case "book":
		return c.VerseRef.Book, nil
	case "notes":
		return c.Notes, nil
	case "preset_id":
		return c.PresetID, nil
	case "annotation_id":
		return c.AnnotationID, nil
	case "created_at":
		return c.CreatedAt.Format(time.RFC3339Nano), nil
	case "updated_at":
		return c.UpdatedAt.Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("contrast_field: unknown field %q", field)
	}
}

// compareField compares a formatted field against a YAML-decoded value.
// A missing value matches the empty string.
func compareField(kind, id, field, got string, want interface{}) error {
	wantStr := ""
	if want != nil {
		wantStr = fmt.Sprint(want)
	}
	if got != wantStr {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%s.%s = %q", id, field, wantStr),
			Actual:   fmt.Sprintf("%s.%s = %q", id, field, got),
		}
	}
	return nil
}

func orNone(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
