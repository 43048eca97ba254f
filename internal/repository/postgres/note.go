package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/osdentaire/agenda-api/internal/model"
)

func (r *schedulingRepository) AddNote(ctx context.Context, note *model.AppointmentNote) error {
	query := `
		INSERT INTO appointment_notes (
			id, appointment_id, author_role, author_name, kind, body, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.ext.ExecContext(ctx, query,
		note.ID,
		note.AppointmentID,
		note.AuthorRole,
		note.AuthorName,
		note.Kind,
		note.Body,
		note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add appointment note: %w", err)
	}
	return nil
}

// ListNotes batch-fetches the notes of the given appointments, oldest first.
func (r *schedulingRepository) ListNotes(ctx context.Context, appointmentIDs []uuid.UUID) ([]*model.AppointmentNote, error) {
	if len(appointmentIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, appointment_id, author_role, author_name, kind, body, created_at
		FROM appointment_notes
		WHERE appointment_id IN (?)
		ORDER BY created_at ASC
	`, appointmentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build notes query: %w", err)
	}
	query = r.ext.Rebind(query)

	var notes []*model.AppointmentNote
	if err := sqlx.SelectContext(ctx, r.ext, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointment notes: %w", err)
	}
	return notes, nil
}
