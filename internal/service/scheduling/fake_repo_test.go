package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/osdentaire/agenda-api/internal/model"
	"github.com/osdentaire/agenda-api/internal/repository"
)

// fakeRepo is an in-memory SchedulingRepository. InTx serializes whole
// transactions and restores a snapshot on failure, modeling the serializable
// isolation the Postgres implementation requests.
type fakeRepo struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	providers     map[uuid.UUID]*model.Provider
	providerOrder []uuid.UUID
	rooms         map[uuid.UUID]*model.Room
	roomOrder     []uuid.UUID
	patients      map[uuid.UUID]*model.Patient
	appointments  []*model.Appointment
	notes         []*model.AppointmentNote
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		providers: make(map[uuid.UUID]*model.Provider),
		rooms:     make(map[uuid.UUID]*model.Room),
		patients:  make(map[uuid.UUID]*model.Patient),
	}
}

func (f *fakeRepo) addProvider(p *model.Provider) {
	f.providers[p.ID] = p
	f.providerOrder = append(f.providerOrder, p.ID)
}

func (f *fakeRepo) addRoom(r *model.Room) {
	f.rooms[r.ID] = r
	f.roomOrder = append(f.roomOrder, r.ID)
}

func (f *fakeRepo) addPatient(p *model.Patient) {
	f.patients[p.ID] = p
}

func (f *fakeRepo) snapshot() ([]*model.Appointment, []*model.AppointmentNote, map[uuid.UUID]*time.Time) {
	appointments := make([]*model.Appointment, len(f.appointments))
	for i, a := range f.appointments {
		clone := *a
		appointments[i] = &clone
	}
	notes := make([]*model.AppointmentNote, len(f.notes))
	copy(notes, f.notes)
	availability := make(map[uuid.UUID]*time.Time, len(f.providers))
	for id, p := range f.providers {
		availability[id] = p.NextAvailableAt
	}
	return appointments, notes, availability
}

func (f *fakeRepo) InTx(ctx context.Context, fn func(repository.SchedulingRepository) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	f.mu.Lock()
	appointments, notes, availability := f.snapshot()
	f.mu.Unlock()

	if err := fn(f); err != nil {
		f.mu.Lock()
		f.appointments = appointments
		f.notes = notes
		for id, at := range availability {
			f.providers[id].NextAvailableAt = at
		}
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeRepo) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[id], nil
}

func (f *fakeRepo) GetRoom(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[id], nil
}

func (f *fakeRepo) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	patient := f.patients[id]
	if patient == nil || patient.DeletedAt != nil {
		return nil, nil
	}
	return patient, nil
}

func (f *fakeRepo) ListActiveProviders(ctx context.Context) ([]*model.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Provider
	for _, id := range f.providerOrder {
		if f.providers[id].IsActive {
			out = append(out, f.providers[id])
		}
	}
	return out, nil
}

func (f *fakeRepo) ListProviderIDs(ctx context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.providerOrder...), nil
}

func (f *fakeRepo) ListRooms(ctx context.Context) ([]*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Room
	for _, id := range f.roomOrder {
		out = append(out, f.rooms[id])
	}
	return out, nil
}

func (f *fakeRepo) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.ID == id {
			clone := *a
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) toDetail(a *model.Appointment) *model.AppointmentDetail {
	provider := f.providers[a.ProviderID]
	room := f.rooms[a.RoomID]
	patient := f.patients[a.PatientID]
	return &model.AppointmentDetail{
		ID:          a.ID,
		Title:       a.Title,
		Status:      a.Status,
		Timezone:    a.Timezone,
		StartAt:     a.StartAt,
		EndAt:       a.EndAt,
		SlotMinutes: a.SlotMinutes,
		Provider: model.ProviderRef{
			ID:       provider.ID,
			FullName: provider.FullName,
			Initials: provider.Initials,
			Color:    provider.Color,
		},
		Room: model.RoomRef{
			ID:    room.ID,
			Name:  room.Name,
			Color: room.Color,
		},
		Patient: model.PatientRef{
			ID:        patient.ID,
			FullName:  patient.FullName,
			Reference: patient.Reference,
		},
		CancelReason:  a.CancelReason,
		CanceledAt:    a.CanceledAt,
		CreatedBy:     a.CreatedBy,
		CreatedByRole: a.CreatedByRole,
		Notes:         []model.AppointmentNote{},
	}
}

func (f *fakeRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*model.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.ID == id {
			return f.toDetail(a), nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListAppointmentDetails(ctx context.Context, filters *model.AppointmentFilters) ([]*model.AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	matchesID := func(ids []uuid.UUID, id uuid.UUID) bool {
		if len(ids) == 0 {
			return true
		}
		for _, candidate := range ids {
			if candidate == id {
				return true
			}
		}
		return false
	}

	var out []*model.AppointmentDetail
	for _, a := range f.appointments {
		if a.StartAt.Before(filters.RangeStart) || !a.StartAt.Before(filters.RangeEnd) {
			continue
		}
		if filters.Status != "" && a.Status != filters.Status {
			continue
		}
		if !matchesID(filters.ProviderIDs, a.ProviderID) || !matchesID(filters.RoomIDs, a.RoomID) {
			continue
		}
		out = append(out, f.toDetail(a))
	}
	// Start ascending, insertion order on ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out, nil
}

func (f *fakeRepo) HasOverlap(ctx context.Context, providerID, roomID uuid.UUID, start, end time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.Status != model.AppointmentStatusScheduled {
			continue
		}
		if a.StartAt.Before(end) && a.EndAt.After(start) &&
			(a.ProviderID == providerID || a.RoomID == roomID) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, appointment *model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *appointment
	f.appointments = append(f.appointments, &clone)
	return nil
}

func (f *fakeRepo) MarkCancelled(ctx context.Context, id uuid.UUID, reason *string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.ID == id {
			a.Status = model.AppointmentStatusCancelled
			a.CancelReason = reason
			canceledAt := at
			a.CanceledAt = &canceledAt
			a.UpdatedAt = at
			return nil
		}
	}
	return nil
}

func (f *fakeRepo) AddNote(ctx context.Context, note *model.AppointmentNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *note
	f.notes = append(f.notes, &clone)
	return nil
}

func (f *fakeRepo) ListNotes(ctx context.Context, appointmentIDs []uuid.UUID) ([]*model.AppointmentNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(appointmentIDs))
	for _, id := range appointmentIDs {
		want[id] = true
	}
	var out []*model.AppointmentNote
	for _, note := range f.notes {
		if want[note.AppointmentID] {
			out = append(out, note)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeRepo) NextScheduledStart(ctx context.Context, providerID uuid.UUID, after time.Time) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var next *time.Time
	for _, a := range f.appointments {
		if a.ProviderID != providerID || a.Status != model.AppointmentStatusScheduled {
			continue
		}
		if !a.StartAt.After(after) {
			continue
		}
		if next == nil || a.StartAt.Before(*next) {
			start := a.StartAt
			next = &start
		}
	}
	return next, nil
}

func (f *fakeRepo) SetProviderNextAvailable(ctx context.Context, providerID uuid.UUID, at *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if provider, ok := f.providers[providerID]; ok {
		provider.NextAvailableAt = at
	}
	return nil
}
