package syncfolder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// BundleFileName is the sync file holding the exported collections.
const BundleFileName = "biblemarker-sync.json"

// FormatVersion is the bundle layout written by this package.
const FormatVersion = 1

// Bundle is the exported form of both collections.
//
// ActiveStudyID carries the writer's active study pointer; "" means no study
// was active. Activation does not stamp UpdatedAt, so the record flags alone
// cannot move a changed activation between devices. It is nil in bundles
// written without the field.
type Bundle struct {
	FormatVersion int               `json:"format_version"`
	ExportedAt    time.Time         `json:"exported_at"`
	ActiveStudyID *string           `json:"active_study_id,omitempty"`
	Studies       []domain.Study    `json:"studies"`
	Contrasts     []domain.Contrast `json:"contrasts"`
}

// NewBundle builds a bundle. Nil collections are written as empty arrays.
func NewBundle(exportedAt time.Time, activeStudyID string, studies []domain.Study, contrasts []domain.Contrast) Bundle {
	if studies == nil {
		studies = []domain.Study{}
	}
	if contrasts == nil {
		contrasts = []domain.Contrast{}
	}
	return Bundle{
		FormatVersion: FormatVersion,
		ExportedAt:    exportedAt.UTC(),
		ActiveStudyID: &activeStudyID,
		Studies:       studies,
		Contrasts:     contrasts,
	}
}

// EncodeBundle renders b as indented JSON, stable enough to diff by hand.
func EncodeBundle(b Bundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeBundle validates data against schema and decodes it.
func DecodeBundle(schema *Schema, data []byte) (Bundle, error) {
	if err := schema.Validate(data); err != nil {
		return Bundle{}, err
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	return b, nil
}

// Normalize applies the stores' text rules to every record. Bundles may be
// edited by hand or written by other clients.
func (b Bundle) Normalize() Bundle {
	studies := make([]domain.Study, len(b.Studies))
	for i, s := range b.Studies {
		s.Name = domain.NormalizeText(s.Name)
		s.Book = domain.NormalizeText(s.Book)
		studies[i] = s
	}
	contrasts := make([]domain.Contrast, len(b.Contrasts))
	for i, c := range b.Contrasts {
		c = c.Normalize()
		c.PresetID = domain.NormalizeText(c.PresetID)
		c.AnnotationID = domain.NormalizeText(c.AnnotationID)
		contrasts[i] = c
	}
	if b.ActiveStudyID != nil {
		id := domain.NormalizeText(*b.ActiveStudyID)
		b.ActiveStudyID = &id
	}
	b.Studies = studies
	b.Contrasts = contrasts
	return b
}
