package syncfolder

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Schema validates raw bundle bytes against the embedded CUE definition.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Validate
// serializes callers.
type Schema struct {
	mu     sync.Mutex
	ctx    *cue.Context
	bundle cue.Value
}

// LoadSchema compiles the embedded bundle schema.
func LoadSchema() (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile bundle schema: %w", err)
	}

	bundle := v.LookupPath(cue.ParsePath("#Bundle"))
	if !bundle.Exists() {
		return nil, fmt.Errorf("compile bundle schema: #Bundle not defined")
	}
	return &Schema{ctx: ctx, bundle: bundle}, nil
}

// Validate checks that data is a concrete, complete bundle. JSON is valid
// CUE, so the bytes are compiled directly and unified with #Bundle.
func (s *Schema) Validate(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.ctx.CompileBytes(data, cue.Filename(BundleFileName))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	unified := s.bundle.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return nil
}
