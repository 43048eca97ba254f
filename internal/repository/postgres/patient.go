package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/osdentaire/agenda-api/internal/model"
)

// GetPatient resolves a bookable patient; soft-deleted records do not count.
func (r *schedulingRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, reference, full_name, deleted_at, created_at, updated_at
		FROM patients
		WHERE id = $1 AND deleted_at IS NULL
	`
	var patient model.Patient
	err := sqlx.GetContext(ctx, r.ext, &patient, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}
