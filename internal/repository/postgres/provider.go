package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/osdentaire/agenda-api/internal/model"
)

func (r *schedulingRepository) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	query := `
		SELECT id, full_name, initials, specialty, role, color, is_active,
		       default_duration_minutes, next_available_at, created_at, updated_at
		FROM providers
		WHERE id = $1
	`
	var provider model.Provider
	err := sqlx.GetContext(ctx, r.ext, &provider, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &provider, nil
}

func (r *schedulingRepository) ListActiveProviders(ctx context.Context) ([]*model.Provider, error) {
	query := `
		SELECT id, full_name, initials, specialty, role, color, is_active,
		       default_duration_minutes, next_available_at, created_at, updated_at
		FROM providers
		WHERE is_active = TRUE
		ORDER BY full_name ASC
	`
	var providers []*model.Provider
	if err := sqlx.SelectContext(ctx, r.ext, &providers, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (r *schedulingRepository) ListProviderIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.ext, &ids, `SELECT id FROM providers ORDER BY full_name ASC`); err != nil {
		return nil, fmt.Errorf("failed to list provider ids: %w", err)
	}
	return ids, nil
}

func (r *schedulingRepository) NextScheduledStart(ctx context.Context, providerID uuid.UUID, after time.Time) (*time.Time, error) {
	query := `
		SELECT start_at
		FROM appointments
		WHERE provider_id = $1
		  AND status = 'scheduled'
		  AND start_at > $2
		ORDER BY start_at ASC
		LIMIT 1
	`
	var start time.Time
	err := sqlx.GetContext(ctx, r.ext, &start, query, providerID, after)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next scheduled start: %w", err)
	}
	return &start, nil
}

func (r *schedulingRepository) SetProviderNextAvailable(ctx context.Context, providerID uuid.UUID, at *time.Time) error {
	query := `
		UPDATE providers
		SET next_available_at = $1, updated_at = NOW()
		WHERE id = $2
	`
	if _, err := r.ext.ExecContext(ctx, query, at, providerID); err != nil {
		return fmt.Errorf("failed to update provider availability: %w", err)
	}
	return nil
}
