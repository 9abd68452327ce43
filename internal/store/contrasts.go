package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/biblemarker/biblemarker/internal/domain"
)

// GetAllContrasts returns every contrast ordered by created_at ASC, id ASC.
// Returns an empty slice (not nil) if no contrasts exist.
func (s *Store) GetAllContrasts(ctx context.Context) ([]domain.Contrast, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_a, item_b, book, chapter, verse, notes, preset_id, annotation_id, created_at, updated_at
		FROM contrasts
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query contrasts: %w", err)
	}
	defer rows.Close()

	contrasts := []domain.Contrast{}
	for rows.Next() {
		c, err := scanContrast(rows)
		if err != nil {
			return nil, err
		}
		contrasts = append(contrasts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contrasts: %w", err)
	}

	return contrasts, nil
}

// SaveContrast inserts or replaces a contrast by id.
func (s *Store) SaveContrast(ctx context.Context, c domain.Contrast) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contrasts
		(id, item_a, item_b, book, chapter, verse, notes, preset_id, annotation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_a = excluded.item_a,
			item_b = excluded.item_b,
			book = excluded.book,
			chapter = excluded.chapter,
			verse = excluded.verse,
			notes = excluded.notes,
			preset_id = excluded.preset_id,
			annotation_id = excluded.annotation_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		c.ID,
		c.ItemA,
		c.ItemB,
		c.VerseRef.Book,
		c.VerseRef.Chapter,
		c.VerseRef.Verse,
		c.Notes,
		c.PresetID,
		c.AnnotationID,
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save contrast: %w", err)
	}
	return nil
}

// DeleteContrast removes a contrast by id. Deleting a missing id is a no-op.
func (s *Store) DeleteContrast(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contrasts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete contrast: %w", err)
	}
	return nil
}

func scanContrast(rows *sql.Rows) (domain.Contrast, error) {
	var c domain.Contrast
	var createdAt, updatedAt string

	if err := rows.Scan(
		&c.ID, &c.ItemA, &c.ItemB,
		&c.VerseRef.Book, &c.VerseRef.Chapter, &c.VerseRef.Verse,
		&c.Notes, &c.PresetID, &c.AnnotationID,
		&createdAt, &updatedAt,
	); err != nil {
		return domain.Contrast{}, fmt.Errorf("scan contrast: %w", err)
	}

	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Contrast{}, fmt.Errorf("contrast %s: %w", c.ID, err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Contrast{}, fmt.Errorf("contrast %s: %w", c.ID, err)
	}

	return c, nil
}
