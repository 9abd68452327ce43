package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/biblemarker/biblemarker/internal/domain"
)

const upsertStudySQL = `
	INSERT INTO studies (id, name, book, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		book = excluded.book,
		is_active = excluded.is_active,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetAllStudies returns every study ordered by created_at ASC, id ASC.
// Returns an empty slice (not nil) if no studies exist.
func (s *Store) GetAllStudies(ctx context.Context) ([]domain.Study, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, book, is_active, created_at, updated_at
		FROM studies
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query studies: %w", err)
	}
	defer rows.Close()

	studies := []domain.Study{}
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		studies = append(studies, study)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate studies: %w", err)
	}

	return studies, nil
}

// SaveStudy inserts or replaces a study by id.
func (s *Store) SaveStudy(ctx context.Context, study domain.Study) error {
	if err := saveStudy(ctx, s.db, study); err != nil {
		return fmt.Errorf("save study: %w", err)
	}
	return nil
}

// SaveStudies upserts every study in a single transaction.
// Either all rows are written or none are.
func (s *Store) SaveStudies(ctx context.Context, studies []domain.Study) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save studies: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, study := range studies {
		if err := saveStudy(ctx, tx, study); err != nil {
			return fmt.Errorf("save studies: %s: %w", study.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save studies: commit: %w", err)
	}
	return nil
}

// DeleteStudy removes a study by id. Deleting a missing id is a no-op.
func (s *Store) DeleteStudy(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM studies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete study: %w", err)
	}
	return nil
}

func saveStudy(ctx context.Context, db execer, study domain.Study) error {
	_, err := db.ExecContext(ctx, upsertStudySQL,
		study.ID,
		study.Name,
		study.Book,
		boolToInt(study.IsActive),
		formatTime(study.CreatedAt),
		formatTime(study.UpdatedAt),
	)
	return err
}

func scanStudy(rows *sql.Rows) (domain.Study, error) {
	var study domain.Study
	var isActive int
	var createdAt, updatedAt string

	if err := rows.Scan(&study.ID, &study.Name, &study.Book, &isActive, &createdAt, &updatedAt); err != nil {
		return domain.Study{}, fmt.Errorf("scan study: %w", err)
	}

	study.IsActive = isActive != 0

	var err error
	if study.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Study{}, fmt.Errorf("study %s: %w", study.ID, err)
	}
	if study.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Study{}, fmt.Errorf("study %s: %w", study.ID, err)
	}

	return study, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
