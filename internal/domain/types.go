package domain

import "time"

// Study is a user-defined unit of scripture study.
// At most one study in a collection has IsActive set.
type Study struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Book      string    `json:"book,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contrast is a recorded comparison between two items anchored to a verse.
type Contrast struct {
	ID           string    `json:"id"`
	ItemA        string    `json:"item_a"`
	ItemB        string    `json:"item_b"`
	VerseRef     VerseRef  `json:"verse_ref"`
	Notes        string    `json:"notes,omitempty"`
	PresetID     string    `json:"preset_id,omitempty"`
	AnnotationID string    `json:"annotation_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Normalize returns a copy of c with ItemA, ItemB and Notes trimmed.
// Blank notes become absent.
func (c Contrast) Normalize() Contrast {
	c.ItemA = NormalizeText(c.ItemA)
	c.ItemB = NormalizeText(c.ItemB)
	c.Notes = NormalizeText(c.Notes)
	c.VerseRef.Book = NormalizeText(c.VerseRef.Book)
	return c
}
