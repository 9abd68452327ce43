package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/biblemarker/biblemarker/internal/domain"
	"github.com/biblemarker/biblemarker/internal/state"
	"github.com/biblemarker/biblemarker/internal/store"
	"github.com/biblemarker/biblemarker/internal/testutil"
)

// Harness executes one scenario against its own stores.
type Harness struct {
	store     *store.Store
	studies   *state.StudyStore
	contrasts *state.ContrastStore
	clock     *testutil.DeterministicClock
	logger    *slog.Logger
	aliases   map[string]string
}

// Option configures Run.
type Option func(*Harness)

// WithLogger sets the logger for step diagnostics. Logs are discarded by
// default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation. Both stores
// share one deterministic clock; studies get ids study-0001, study-0002...
// and contrasts contrast-0001...
//
// An unexpected step failure (or an expected failure that does not happen)
// is recorded and stops execution; assertions still run on the state reached.
// A non-nil error means the harness itself could not run.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()
	h := &Harness{
		store:   st,
		clock:   clock,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		aliases: map[string]string{},
	}
	for _, opt := range opts {
		opt(h)
	}

	h.studies = state.NewStudyStore(st,
		state.WithClock(clock),
		state.WithIDGenerator(testutil.NewSequentialIDs("study")),
		state.WithSnapshots(st),
		state.WithLogger(h.logger),
	)
	h.contrasts = state.NewContrastStore(st,
		state.WithClock(clock),
		state.WithIDGenerator(testutil.NewSequentialIDs("contrast")),
		state.WithLogger(h.logger),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		if !h.executeStep(ctx, i, step, result) {
			break
		}
	}

	result.State = FinalState{
		ActiveStudyID: h.studies.ActiveStudyID(),
		Studies:       h.studies.Studies(),
		Contrasts:     h.contrasts.Contrasts(),
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		Studies:   h.studies,
		Contrasts: h.contrasts,
		Aliases:   h.aliases,
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeStep runs one step and records it. It returns false when execution
// must stop.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) bool {
	id, err := h.apply(ctx, step)

	rec := StepRecord{Index: index, Op: step.Op, ID: id}
	if err != nil {
		rec.Error = err.Error()
	}
	result.AddStep(rec)

	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, step.Op, err))
		return false
	case step.ExpectError != "" && err == nil:
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s error, got success", index, step.Op, step.ExpectError))
		return false
	case step.ExpectError != "" && !matchesErrorKind(err, step.ExpectError):
		result.AddError(fmt.Sprintf("steps[%d] %s: expected %s error, got: %v", index, step.Op, step.ExpectError, err))
		return false
	}

	if step.SaveAs != "" && id != "" && err == nil {
		h.aliases[step.SaveAs] = id
	}

	h.logger.Info("step completed",
		"step", index,
		"op", step.Op,
		"id", id,
		"error", rec.Error,
	)
	return true
}

// apply performs the step's operation and returns the id it created or
// touched.
func (h *Harness) apply(ctx context.Context, step Step) (string, error) {
	args := stepArgs{raw: step.Args, aliases: h.aliases}

	switch step.Op {
	case OpCreateStudy:
		s, err := h.studies.CreateStudy(ctx, args.str("name"), args.str("book"))
		return s.ID, err

	case OpUpdateStudy:
		id := args.str("id")
		current, ok := h.studies.GetStudy(id)
		if !ok {
			current = domain.Study{ID: id}
		}
		if v, ok := args.lookup("name"); ok {
			current.Name = v
		}
		if v, ok := args.lookup("book"); ok {
			current.Book = v
		}
		if v, ok := args.boolean("active"); ok {
			current.IsActive = v
		}
		s, err := h.studies.UpdateStudy(ctx, current)
		if err != nil {
			return id, err
		}
		return s.ID, nil

	case OpSetActiveStudy:
		id := args.str("id")
		return id, h.studies.SetActiveStudy(ctx, id)

	case OpDeleteStudy:
		id := args.str("id")
		return id, h.studies.DeleteStudy(ctx, id)

	case OpLoadStudies:
		return "", h.studies.LoadStudies(ctx)

	case OpCreateContrast:
		ref, err := args.verse("verse")
		if err != nil {
			return "", err
		}
		c, err := h.contrasts.CreateContrast(ctx, state.ContrastInput{
			ItemA:        args.str("item_a"),
			ItemB:        args.str("item_b"),
			VerseRef:     ref,
			Notes:        args.str("notes"),
			PresetID:     args.str("preset_id"),
			AnnotationID: args.str("annotation_id"),
		})
		return c.ID, err

	case OpUpdateContrast:
		id := args.str("id")
		current, ok := h.contrasts.GetContrast(id)
		if !ok {
			current = domain.Contrast{ID: id}
		}
		if v, ok := args.lookup("item_a"); ok {
			current.ItemA = v
		}
		if v, ok := args.lookup("item_b"); ok {
			current.ItemB = v
		}
		if _, ok := args.lookup("verse"); ok {
			ref, err := args.verse("verse")
			if err != nil {
				return id, err
			}
			current.VerseRef = ref
		}
		if v, ok := args.lookup("notes"); ok {
			current.Notes = v
		}
		if v, ok := args.lookup("preset_id"); ok {
			current.PresetID = v
		}
		if v, ok := args.lookup("annotation_id"); ok {
			current.AnnotationID = v
		}
		c, err := h.contrasts.UpdateContrast(ctx, current)
		if err != nil {
			return id, err
		}
		return c.ID, nil

	case OpDeleteContrast:
		id := args.str("id")
		return id, h.contrasts.DeleteContrast(ctx, id)

	case OpLoadContrasts:
		return "", h.contrasts.LoadContrasts(ctx)

	default:
		return "", fmt.Errorf("unknown op %q", step.Op)
	}
}

func matchesErrorKind(err error, kind string) bool {
	switch kind {
	case ErrorKindAny:
		return err != nil
	case ErrorKindNotFound:
		return errors.Is(err, state.ErrNotFound)
	case ErrorKindInvalidStudy:
		return errors.Is(err, state.ErrInvalidStudy)
	case ErrorKindInvalidContrast:
		return errors.Is(err, state.ErrInvalidContrast) || errors.Is(err, domain.ErrInvalidVerseRef)
	default:
		return false
	}
}

// stepArgs reads YAML-decoded step arguments, resolving "$alias" strings.
type stepArgs struct {
	raw     map[string]interface{}
	aliases map[string]string
}

// lookup returns the argument as a string and whether it was present.
// Non-string scalars are formatted with fmt.
func (a stepArgs) lookup(key string) (string, bool) {
	v, ok := a.raw[key]
	if !ok || v == nil {
		return "", ok
	}
	s, isString := v.(string)
	if !isString {
		return fmt.Sprint(v), true
	}
	return resolveAlias(s, a.aliases), true
}

func (a stepArgs) str(key string) string {
	s, _ := a.lookup(key)
	return s
}

func (a stepArgs) boolean(key string) (bool, bool) {
	v, ok := a.raw[key]
	if !ok {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// verse parses a "Book chapter:verse" argument. A missing argument yields
// the zero reference, which the store rejects.
func (a stepArgs) verse(key string) (domain.VerseRef, error) {
	s, ok := a.lookup(key)
	if !ok || strings.TrimSpace(s) == "" {
		return domain.VerseRef{}, nil
	}
	return domain.ParseVerseRef(s)
}

// resolveAlias maps "$name" to its saved id. Unknown aliases are returned
// unchanged so the store reports them as missing ids.
func resolveAlias(s string, aliases map[string]string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	if id, ok := aliases[s[1:]]; ok {
		return id
	}
	return s
}
