package postgres

import (
	"context"
	"fmt"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PatientDirectory = (*DirectoryStore)(nil)

// DirectoryStore implements driven.PatientDirectory over the local patients
// table. The table mirrors the record system's directory and is refreshed
// out of band; matching only needs a recent snapshot, not a live view.
type DirectoryStore struct {
	db *DB
}

// NewDirectoryStore creates a new DirectoryStore
func NewDirectoryStore(db *DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

// Snapshot returns every known patient in stable insertion order.
func (s *DirectoryStore) Snapshot(ctx context.Context) ([]domain.Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name FROM patients ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("snapshot patients: %w", err)
	}
	defer rows.Close()

	var patients []domain.Patient
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(&p.ID, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// Upsert inserts or updates one directory entry. Used by the directory
// refresh job when syncing from the record system.
func (s *DirectoryStore) Upsert(ctx context.Context, p domain.Patient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patients (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name
	`, p.ID, p.DisplayName)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}
