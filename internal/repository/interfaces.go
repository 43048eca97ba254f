package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/osdentaire/agenda-api/internal/model"
)

// SchedulingRepository is the storage surface of the scheduling engine.
// Lookup methods return (nil, nil) when the row does not exist so the service
// can attach the right not-found code.
//
// InTx runs fn against a transaction-bound copy of the repository; every
// mutation of a booking or cancellation must go through it so the appointment
// row, its notes and the provider availability cache commit or roll back as
// one unit.
type SchedulingRepository interface {
	InTx(ctx context.Context, fn func(SchedulingRepository) error) error

	GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*model.Room, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	ListActiveProviders(ctx context.Context) ([]*model.Provider, error)
	ListProviderIDs(ctx context.Context) ([]uuid.UUID, error)
	ListRooms(ctx context.Context) ([]*model.Room, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*model.AppointmentDetail, error)
	ListAppointmentDetails(ctx context.Context, filters *model.AppointmentFilters) ([]*model.AppointmentDetail, error)
	HasOverlap(ctx context.Context, providerID, roomID uuid.UUID, start, end time.Time) (bool, error)
	CreateAppointment(ctx context.Context, appointment *model.Appointment) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason *string, at time.Time) error

	AddNote(ctx context.Context, note *model.AppointmentNote) error
	ListNotes(ctx context.Context, appointmentIDs []uuid.UUID) ([]*model.AppointmentNote, error)

	NextScheduledStart(ctx context.Context, providerID uuid.UUID, after time.Time) (*time.Time, error)
	SetProviderNextAvailable(ctx context.Context, providerID uuid.UUID, at *time.Time) error
}
