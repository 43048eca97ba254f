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

func (r *schedulingRepository) GetRoom(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	query := `
		SELECT id, name, color, floor, equipment, created_at, updated_at
		FROM rooms
		WHERE id = $1
	`
	var room model.Room
	err := sqlx.GetContext(ctx, r.ext, &room, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

func (r *schedulingRepository) ListRooms(ctx context.Context) ([]*model.Room, error) {
	query := `
		SELECT id, name, color, floor, equipment, created_at, updated_at
		FROM rooms
		ORDER BY name ASC
	`
	var rooms []*model.Room
	if err := sqlx.SelectContext(ctx, r.ext, &rooms, query); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}
