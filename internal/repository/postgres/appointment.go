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

// appointmentRow is the flat scan target for the joined detail query.
type appointmentRow struct {
	ID               uuid.UUID               `db:"id"`
	Title            string                  `db:"title"`
	Status           model.AppointmentStatus `db:"status"`
	Timezone         string                  `db:"timezone"`
	StartAt          time.Time               `db:"start_at"`
	EndAt            time.Time               `db:"end_at"`
	SlotMinutes      int                     `db:"slot_minutes"`
	CancelReason     *string                 `db:"cancel_reason"`
	CanceledAt       *time.Time              `db:"canceled_at"`
	CreatedBy        string                  `db:"created_by"`
	CreatedByRole    string                  `db:"created_by_role"`
	ProviderID       uuid.UUID               `db:"provider_id"`
	ProviderFullName string                  `db:"provider_full_name"`
	ProviderInitials string                  `db:"provider_initials"`
	ProviderColor    string                  `db:"provider_color"`
	RoomID           uuid.UUID               `db:"room_id"`
	RoomName         string                  `db:"room_name"`
	RoomColor        string                  `db:"room_color"`
	PatientID        uuid.UUID               `db:"patient_id"`
	PatientFullName  string                  `db:"patient_full_name"`
	PatientReference string                  `db:"patient_reference"`
}

func (row *appointmentRow) toDetail() *model.AppointmentDetail {
	return &model.AppointmentDetail{
		ID:          row.ID,
		Title:       row.Title,
		Status:      row.Status,
		Timezone:    row.Timezone,
		StartAt:     row.StartAt,
		EndAt:       row.EndAt,
		SlotMinutes: row.SlotMinutes,
		Provider: model.ProviderRef{
			ID:       row.ProviderID,
			FullName: row.ProviderFullName,
			Initials: row.ProviderInitials,
			Color:    row.ProviderColor,
		},
		Room: model.RoomRef{
			ID:    row.RoomID,
			Name:  row.RoomName,
			Color: row.RoomColor,
		},
		Patient: model.PatientRef{
			ID:        row.PatientID,
			FullName:  row.PatientFullName,
			Reference: row.PatientReference,
		},
		CancelReason:  row.CancelReason,
		CanceledAt:    row.CanceledAt,
		CreatedBy:     row.CreatedBy,
		CreatedByRole: row.CreatedByRole,
		Notes:         []model.AppointmentNote{},
	}
}

const appointmentDetailSelect = `
	SELECT a.id, a.title, a.status, a.timezone, a.start_at, a.end_at,
	       a.slot_minutes, a.cancel_reason, a.canceled_at,
	       a.created_by, a.created_by_role,
	       p.id AS provider_id, p.full_name AS provider_full_name,
	       p.initials AS provider_initials, p.color AS provider_color,
	       r.id AS room_id, r.name AS room_name, r.color AS room_color,
	       pa.id AS patient_id, pa.full_name AS patient_full_name,
	       pa.reference AS patient_reference
	FROM appointments a
	JOIN providers p ON p.id = a.provider_id
	JOIN rooms r ON r.id = a.room_id
	JOIN patients pa ON pa.id = a.patient_id
`

func (r *schedulingRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `
		SELECT id, provider_id, room_id, patient_id, title, status, timezone,
		       start_at, end_at, slot_minutes, created_by, created_by_role,
		       cancel_reason, canceled_at, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`
	var appointment model.Appointment
	err := sqlx.GetContext(ctx, r.ext, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *schedulingRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*model.AppointmentDetail, error) {
	query := appointmentDetailSelect + ` WHERE a.id = $1`

	var row appointmentRow
	err := sqlx.GetContext(ctx, r.ext, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment detail: %w", err)
	}
	return row.toDetail(), nil
}

// ListAppointmentDetails returns appointments whose start falls in
// [RangeStart, RangeEnd), ordered by start ascending with ties broken by
// insertion order.
func (r *schedulingRepository) ListAppointmentDetails(ctx context.Context, filters *model.AppointmentFilters) ([]*model.AppointmentDetail, error) {
	query := appointmentDetailSelect + ` WHERE a.start_at >= ? AND a.start_at < ?`
	args := []interface{}{filters.RangeStart, filters.RangeEnd}

	if filters.Status != "" {
		query += ` AND a.status = ?`
		args = append(args, filters.Status)
	}
	if len(filters.ProviderIDs) > 0 {
		query += ` AND a.provider_id IN (?)`
		args = append(args, filters.ProviderIDs)
	}
	if len(filters.RoomIDs) > 0 {
		query += ` AND a.room_id IN (?)`
		args = append(args, filters.RoomIDs)
	}
	query += ` ORDER BY a.start_at ASC, a.created_at ASC`

	query, expanded, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build listing query: %w", err)
	}
	query = r.ext.Rebind(query)

	var rows []appointmentRow
	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, expanded...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	details := make([]*model.AppointmentDetail, 0, len(rows))
	for i := range rows {
		details = append(details, rows[i].toDetail())
	}
	return details, nil
}

// HasOverlap reports whether any scheduled appointment sharing the provider
// or the room intersects [start, end) under half-open interval semantics.
func (r *schedulingRepository) HasOverlap(ctx context.Context, providerID, roomID uuid.UUID, start, end time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE status = 'scheduled'
			  AND start_at < $1
			  AND end_at > $2
			  AND (provider_id = $3 OR room_id = $4)
		)
	`
	var overlap bool
	if err := sqlx.GetContext(ctx, r.ext, &overlap, query, end, start, providerID, roomID); err != nil {
		return false, fmt.Errorf("failed to check overlap: %w", err)
	}
	return overlap, nil
}

func (r *schedulingRepository) CreateAppointment(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, provider_id, room_id, patient_id, title, status, timezone,
			start_at, end_at, slot_minutes, created_by, created_by_role,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.ext.ExecContext(ctx, query,
		appointment.ID,
		appointment.ProviderID,
		appointment.RoomID,
		appointment.PatientID,
		appointment.Title,
		appointment.Status,
		appointment.Timezone,
		appointment.StartAt,
		appointment.EndAt,
		appointment.SlotMinutes,
		appointment.CreatedBy,
		appointment.CreatedByRole,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *schedulingRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason *string, at time.Time) error {
	query := `
		UPDATE appointments
		SET status = 'cancelled', cancel_reason = $1, canceled_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.ext.ExecContext(ctx, query, reason, at, id)
	if err != nil {
		return fmt.Errorf("failed to cancel appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("appointment %s not found", id)
	}
	return nil
}
