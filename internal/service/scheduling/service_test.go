package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osdentaire/agenda-api/internal/model"
	"github.com/osdentaire/agenda-api/internal/realtime"
	"github.com/osdentaire/agenda-api/pkg/errors"
)

type fixture struct {
	repo    *fakeRepo
	broker  *realtime.Broker
	service *Service

	provider *model.Provider
	room     *model.Room
	patient  *model.Patient
	now      time.Time
	loc      *time.Location
}

// Monday 2025-03-03 08:00 in the practice zone.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, loc)

	repo := newFakeRepo()
	provider := &model.Provider{
		Base:                   model.Base{ID: uuid.New()},
		FullName:               "Dr. Anna Berger",
		Initials:               "AB",
		Role:                   model.ProviderRoleDentist,
		Color:                  "#0ea5e9",
		IsActive:               true,
		DefaultDurationMinutes: 30,
	}
	room := &model.Room{
		Base:  model.Base{ID: uuid.New()},
		Name:  "Room 1",
		Color: "#6366f1",
	}
	patient := &model.Patient{
		Base:      model.Base{ID: uuid.New()},
		Reference: "PAT-001",
		FullName:  "Marc Dupont",
	}
	repo.addProvider(provider)
	repo.addRoom(room)
	repo.addPatient(patient)

	broker := realtime.NewBroker()
	service := NewService(repo, broker, Config{Location: loc, SlotMinutes: 15},
		WithClock(func() time.Time { return now }))

	return &fixture{
		repo:     repo,
		broker:   broker,
		service:  service,
		provider: provider,
		room:     room,
		patient:  patient,
		now:      now,
		loc:      loc,
	}
}

func (f *fixture) createRequest(startAt string) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		ProviderID: f.provider.ID,
		RoomID:     f.room.ID,
		PatientID:  f.patient.ID,
		Title:      "Checkup",
		StartAt:    startAt,
	}
}

var testActor = model.Actor{ID: "user-1", Role: "dentist"}

func TestCreateBooksSlotAndRefreshesAvailability(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Checkup"

	detail, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, detail.Status)
	assert.Equal(t, 30, detail.SlotMinutes, "provider default duration applies")
	assert.Equal(t, "Europe/Paris", detail.Timezone)
	assert.Equal(t, detail.StartAt.Add(30*time.Minute), detail.EndAt)
	assert.Equal(t, "user-1", detail.CreatedBy)
	assert.Equal(t, "dentist", detail.CreatedByRole)

	// System notification note is attached in the same transaction.
	require.Len(t, detail.Notes, 1)
	assert.Equal(t, model.NoteKindNotification, detail.Notes[0].Kind)
	assert.Equal(t, "slot created by dentist", detail.Notes[0].Body)

	// Availability cache points at the new booking.
	require.NotNil(t, f.provider.NextAvailableAt)
	assert.True(t, f.provider.NextAvailableAt.Equal(detail.StartAt))

	// A created event carrying the detail was emitted.
	events := f.broker.EventsSince(0)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventAppointmentCreated, events[0].Kind)
	assert.Equal(t, detail.ID, events[0].Appointment.ID)
}

func TestCreateAttachesCallerNotes(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Checkup"
	req.Notes = []model.NoteInput{{Body: "patient prefers mornings"}}

	detail, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	require.Len(t, detail.Notes, 2)
	assert.Equal(t, model.NoteKindNote, detail.Notes[0].Kind)
	assert.Equal(t, "patient prefers mornings", detail.Notes[0].Body)
	assert.Equal(t, model.NoteKindNotification, detail.Notes[1].Kind)
}

func TestCreateExplicitDurationOverridesDefault(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Long procedure"
	req.DurationMinutes = 45

	detail, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)
	assert.Equal(t, 45, detail.SlotMinutes)
}

func TestCreateSlotAlignment(t *testing.T) {
	f := newFixture(t)

	for _, minute := range []string{"00", "15", "30", "45"} {
		req := f.createRequest("2025-03-03T10:" + minute + ":00+01:00")
		req.Title = "Aligned"
		req.RoomID = f.room.ID
		_, err := f.service.Create(context.Background(), req, testActor)
		require.NoError(t, err, "minute %s must align", minute)
		// Free the provider/room again for the next iteration.
		listing, err := f.service.List(context.Background(), nil)
		require.NoError(t, err)
		for _, a := range listing.Appointments {
			if a.Status == model.AppointmentStatusScheduled {
				_, err = f.service.Cancel(context.Background(), a.ID, nil, testActor)
				require.NoError(t, err)
			}
		}
	}

	req := f.createRequest("2025-03-03T10:10:00+01:00")
	req.Title = "Misaligned"
	_, err := f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidSlotAlignment))
}

func TestCreateRejectsNonMultipleDuration(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Odd duration"
	req.DurationMinutes = 40

	_, err := f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidSlotDuration))
}

func TestCreateRejectsUnparsableStart(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("tomorrow at nine")
	req.Title = "Bad instant"

	_, err := f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidDateTime))
}

func TestCreateMissingReferences(t *testing.T) {
	f := newFixture(t)

	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "No provider"
	req.ProviderID = uuid.New()
	_, err := f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeProviderNotFound))

	req = f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "No room"
	req.RoomID = uuid.New()
	_, err = f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeRoomNotFound))

	req = f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "No patient"
	req.PatientID = uuid.New()
	_, err = f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodePatientNotFound))
}

func TestCreateRejectsSoftDeletedPatient(t *testing.T) {
	f := newFixture(t)
	deletedAt := f.now.Add(-time.Hour)
	f.patient.DeletedAt = &deletedAt

	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Archived patient"
	_, err := f.service.Create(context.Background(), req, testActor)
	assert.True(t, errors.HasCode(err, errors.CodePatientNotFound))
}

func TestCreateDoubleBooking(t *testing.T) {
	f := newFixture(t)

	first := f.createRequest("2025-03-03T09:00:00+01:00")
	first.Title = "First"
	_, err := f.service.Create(context.Background(), first, testActor)
	require.NoError(t, err)

	// Overlapping window for the same provider and room.
	second := f.createRequest("2025-03-03T09:15:00+01:00")
	second.Title = "Second"
	_, err = f.service.Create(context.Background(), second, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeDoubleBooking))

	// Same provider in a different room still conflicts.
	otherRoom := &model.Room{Base: model.Base{ID: uuid.New()}, Name: "Room 2", Color: "#fff"}
	f.repo.addRoom(otherRoom)
	third := f.createRequest("2025-03-03T09:15:00+01:00")
	third.Title = "Third"
	third.RoomID = otherRoom.ID
	_, err = f.service.Create(context.Background(), third, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeDoubleBooking))

	// Same room with a different provider conflicts too.
	otherProvider := &model.Provider{
		Base:                   model.Base{ID: uuid.New()},
		FullName:               "Dr. Leon Faivre",
		Initials:               "LF",
		IsActive:               true,
		DefaultDurationMinutes: 30,
	}
	f.repo.addProvider(otherProvider)
	fourth := f.createRequest("2025-03-03T09:15:00+01:00")
	fourth.Title = "Fourth"
	fourth.ProviderID = otherProvider.ID
	_, err = f.service.Create(context.Background(), fourth, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeDoubleBooking))

	// Back-to-back under half-open semantics does not conflict.
	adjacent := f.createRequest("2025-03-03T09:30:00+01:00")
	adjacent.Title = "Adjacent"
	_, err = f.service.Create(context.Background(), adjacent, testActor)
	assert.NoError(t, err)

	// Nothing was written for the rejected attempts.
	listing, err := f.service.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, listing.Appointments, 2)
}

func TestConcurrentBookingOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := f.createRequest("2025-03-03T09:00:00+01:00")
			req.Title = "Race"
			_, err := f.service.Create(context.Background(), req, testActor)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
		} else if errors.HasCode(err, errors.CodeDoubleBooking) {
			lost++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestCancelLifecycle(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "To cancel"
	created, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)
	require.NotNil(t, f.provider.NextAvailableAt)

	reason := "patient called in sick"
	detail, err := f.service.Cancel(context.Background(), created.ID, &model.CancelAppointmentRequest{Reason: &reason}, testActor)
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCancelled, detail.Status)
	require.NotNil(t, detail.CancelReason)
	assert.Equal(t, reason, *detail.CancelReason)
	require.NotNil(t, detail.CanceledAt)

	// Creation notification plus cancellation notification.
	require.Len(t, detail.Notes, 2)
	assert.Equal(t, "cancelled: patient called in sick", detail.Notes[1].Body)

	// Availability recomputes to empty.
	assert.Nil(t, f.provider.NextAvailableAt)

	// A scheduled-only listing no longer returns it.
	listing, err := f.service.List(context.Background(), &model.ListAppointmentsQuery{Status: "scheduled"})
	require.NoError(t, err)
	assert.Empty(t, listing.Appointments)

	events := f.broker.EventsSince(0)
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventAppointmentCancelled, events[1].Kind)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Twice cancelled"
	created, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	first, err := f.service.Cancel(context.Background(), created.ID, nil, testActor)
	require.NoError(t, err)
	cursorAfterFirst := f.broker.Cursor()

	second, err := f.service.Cancel(context.Background(), created.ID, nil, testActor)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, len(first.Notes), len(second.Notes), "no duplicate notification note")
	assert.Equal(t, cursorAfterFirst, f.broker.Cursor(), "no new event on repeat cancel")
}

func TestCancelWithoutReasonWritesPlainNote(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "No reason"
	created, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	detail, err := f.service.Cancel(context.Background(), created.ID, nil, testActor)
	require.NoError(t, err)
	require.Len(t, detail.Notes, 2)
	assert.Equal(t, "cancelled", detail.Notes[1].Body)
	assert.Nil(t, detail.CancelReason)
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Cancel(context.Background(), uuid.New(), nil, testActor)
	assert.True(t, errors.HasCode(err, errors.CodeAppointmentNotFound))
}

func TestListDefaultsToCurrentWeek(t *testing.T) {
	f := newFixture(t)

	inWeek := f.createRequest("2025-03-05T09:00:00+01:00")
	inWeek.Title = "This week"
	_, err := f.service.Create(context.Background(), inWeek, testActor)
	require.NoError(t, err)

	nextWeek := f.createRequest("2025-03-12T09:00:00+01:00")
	nextWeek.Title = "Next week"
	_, err = f.service.Create(context.Background(), nextWeek, testActor)
	require.NoError(t, err)

	listing, err := f.service.List(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, listing.Appointments, 1)
	assert.Equal(t, "This week", listing.Appointments[0].Title)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, f.loc), listing.Meta.Start)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, f.loc), listing.Meta.End)
	assert.Equal(t, "Europe/Paris", listing.Meta.Timezone)
}

func TestListOrderingAndFilters(t *testing.T) {
	f := newFixture(t)

	otherProvider := &model.Provider{
		Base:                   model.Base{ID: uuid.New()},
		FullName:               "Dr. Leon Faivre",
		Initials:               "LF",
		IsActive:               true,
		DefaultDurationMinutes: 30,
	}
	otherRoom := &model.Room{Base: model.Base{ID: uuid.New()}, Name: "Room 2", Color: "#fff"}
	f.repo.addProvider(otherProvider)
	f.repo.addRoom(otherRoom)

	late := f.createRequest("2025-03-03T11:00:00+01:00")
	late.Title = "Late"
	_, err := f.service.Create(context.Background(), late, testActor)
	require.NoError(t, err)

	early := f.createRequest("2025-03-03T09:00:00+01:00")
	early.Title = "Early"
	early.ProviderID = otherProvider.ID
	early.RoomID = otherRoom.ID
	_, err = f.service.Create(context.Background(), early, testActor)
	require.NoError(t, err)

	listing, err := f.service.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, listing.Appointments, 2)
	assert.Equal(t, "Early", listing.Appointments[0].Title)
	assert.Equal(t, "Late", listing.Appointments[1].Title)

	filtered, err := f.service.List(context.Background(), &model.ListAppointmentsQuery{
		ProviderIDs: []uuid.UUID{otherProvider.ID},
	})
	require.NoError(t, err)
	require.Len(t, filtered.Appointments, 1)
	assert.Equal(t, "Early", filtered.Appointments[0].Title)

	filtered, err = f.service.List(context.Background(), &model.ListAppointmentsQuery{
		RoomIDs: []uuid.UUID{f.room.ID},
	})
	require.NoError(t, err)
	require.Len(t, filtered.Appointments, 1)
	assert.Equal(t, "Late", filtered.Appointments[0].Title)

	_, err = f.service.List(context.Background(), &model.ListAppointmentsQuery{Status: "postponed"})
	assert.True(t, errors.HasCode(err, errors.CodeBadRequest))
}

func TestListIncludeNotes(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "With notes"
	req.Notes = []model.NoteInput{{Body: "bring x-rays"}}
	_, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	withoutNotes, err := f.service.List(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, withoutNotes.Appointments, 1)
	assert.Empty(t, withoutNotes.Appointments[0].Notes)

	withNotes, err := f.service.List(context.Background(), &model.ListAppointmentsQuery{IncludeNotes: true})
	require.NoError(t, err)
	require.Len(t, withNotes.Appointments, 1)
	require.Len(t, withNotes.Appointments[0].Notes, 2)
	assert.Equal(t, "bring x-rays", withNotes.Appointments[0].Notes[0].Body)
}

func TestListReturnsRostersAndCursor(t *testing.T) {
	f := newFixture(t)

	inactive := &model.Provider{
		Base:     model.Base{ID: uuid.New()},
		FullName: "Dr. Gone",
		Initials: "DG",
		IsActive: false,
	}
	f.repo.addProvider(inactive)

	listing, err := f.service.List(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, listing.Providers, 1, "inactive providers excluded from roster")
	assert.Equal(t, f.provider.ID, listing.Providers[0].ID)
	require.Len(t, listing.Rooms, 1)
	assert.EqualValues(t, 0, listing.Meta.Cursor)

	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Moves the cursor"
	_, err = f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	listing, err = f.service.List(context.Background(), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, listing.Meta.Cursor)
	require.NotNil(t, listing.Providers[0].NextAvailableAt, "roster cache invalidated by booking")
}

func TestExplicitRangeQuery(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-12T09:00:00+01:00")
	req.Title = "Next week"
	_, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	listing, err := f.service.List(context.Background(), &model.ListAppointmentsQuery{
		Start: "2025-03-10T00:00:00+01:00",
		End:   "2025-03-17T00:00:00+01:00",
	})
	require.NoError(t, err)
	require.Len(t, listing.Appointments, 1)

	_, err = f.service.List(context.Background(), &model.ListAppointmentsQuery{
		Start: "2025-03-17T00:00:00+01:00",
		End:   "2025-03-10T00:00:00+01:00",
	})
	assert.True(t, errors.HasCode(err, errors.CodeInvalidRange))
}

func TestRecomputeAvailability(t *testing.T) {
	f := newFixture(t)
	req := f.createRequest("2025-03-03T09:00:00+01:00")
	req.Title = "Future slot"
	_, err := f.service.Create(context.Background(), req, testActor)
	require.NoError(t, err)

	// Simulate drift: wipe the cached value behind the engine's back.
	f.provider.NextAvailableAt = nil

	count, err := f.service.RecomputeAvailability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NotNil(t, f.provider.NextAvailableAt)
}
