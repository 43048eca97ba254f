package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

type NoteKind string

const (
	NoteKindNote         NoteKind = "note"
	NoteKindNotification NoteKind = "notification"
)

type Appointment struct {
	Base
	ProviderID    uuid.UUID         `db:"provider_id" json:"provider_id"`
	RoomID        uuid.UUID         `db:"room_id" json:"room_id"`
	PatientID     uuid.UUID         `db:"patient_id" json:"patient_id"`
	Title         string            `db:"title" json:"title"`
	Status        AppointmentStatus `db:"status" json:"status"`
	Timezone      string            `db:"timezone" json:"timezone"`
	StartAt       time.Time         `db:"start_at" json:"start_at"`
	EndAt         time.Time         `db:"end_at" json:"end_at"`
	SlotMinutes   int               `db:"slot_minutes" json:"slot_minutes"`
	CreatedBy     string            `db:"created_by" json:"created_by"`
	CreatedByRole string            `db:"created_by_role" json:"created_by_role"`
	CancelReason  *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CanceledAt    *time.Time        `db:"canceled_at" json:"canceled_at,omitempty"`
}

// AppointmentNote is an append-only message attached to an appointment.
// Kind "note" is authored by a human; "notification" is written by the engine
// on creation and cancellation.
type AppointmentNote struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	AuthorRole    string    `db:"author_role" json:"author_role"`
	AuthorName    string    `db:"author_name" json:"author_name"`
	Kind          NoteKind  `db:"kind" json:"kind"`
	Body          string    `db:"body" json:"body"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AppointmentDetail is the joined view returned by create/cancel and by
// listings: the appointment row plus display summaries of its references.
type AppointmentDetail struct {
	ID            uuid.UUID         `json:"id"`
	Title         string            `json:"title"`
	Status        AppointmentStatus `json:"status"`
	Timezone      string            `json:"timezone"`
	StartAt       time.Time         `json:"start_at"`
	EndAt         time.Time         `json:"end_at"`
	SlotMinutes   int               `json:"slot_minutes"`
	Provider      ProviderRef       `json:"provider"`
	Room          RoomRef           `json:"room"`
	Patient       PatientRef        `json:"patient"`
	CancelReason  *string           `json:"cancel_reason"`
	CanceledAt    *time.Time        `json:"canceled_at"`
	CreatedBy     string            `json:"created_by"`
	CreatedByRole string            `json:"created_by_role"`
	Notes         []AppointmentNote `json:"notes"`
}

type ProviderRef struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Initials string    `json:"initials"`
	Color    string    `json:"color"`
}

type RoomRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

type PatientRef struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"full_name"`
	Reference string    `json:"reference"`
}

type NoteInput struct {
	Body string `json:"body" binding:"required" validate:"min=3,max=500"`
}

type CreateAppointmentRequest struct {
	ProviderID      uuid.UUID   `json:"provider_id" binding:"required"`
	RoomID          uuid.UUID   `json:"room_id" binding:"required"`
	PatientID       uuid.UUID   `json:"patient_id" binding:"required"`
	Title           string      `json:"title" binding:"required" validate:"min=3,max=160"`
	StartAt         string      `json:"start_at" binding:"required"`
	DurationMinutes int         `json:"duration_minutes,omitempty" validate:"omitempty,min=5,max=240"`
	Notes           []NoteInput `json:"notes,omitempty" validate:"omitempty,max=3,dive"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,min=3,max=240"`
}

type ListAppointmentsQuery struct {
	Start        string      `form:"start"`
	End          string      `form:"end"`
	Status       string      `form:"status"`
	ProviderIDs  []uuid.UUID `form:"provider_id"`
	RoomIDs      []uuid.UUID `form:"room_id"`
	IncludeNotes bool        `form:"include_notes"`
}

// AppointmentFilters is the normalized storage-level filter set derived from
// a ListAppointmentsQuery.
type AppointmentFilters struct {
	RangeStart  time.Time
	RangeEnd    time.Time
	Status      AppointmentStatus
	ProviderIDs []uuid.UUID
	RoomIDs     []uuid.UUID
}

type ListMeta struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
	Cursor   int64     `json:"cursor"`
}

type AppointmentListing struct {
	Appointments []*AppointmentDetail `json:"appointments"`
	Providers    []*Provider          `json:"providers"`
	Rooms        []*Room              `json:"rooms"`
	Meta         ListMeta             `json:"meta"`
}
