// Package scheduling implements the appointment booking engine: listing with
// range queries, conflict-checked creation and idempotent cancellation, plus
// the provider availability cache those mutations maintain.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/osdentaire/agenda-api/internal/model"
	"github.com/osdentaire/agenda-api/internal/realtime"
	"github.com/osdentaire/agenda-api/internal/repository"
	"github.com/osdentaire/agenda-api/pkg/errors"
	"github.com/osdentaire/agenda-api/pkg/metrics"
	"github.com/osdentaire/agenda-api/pkg/timeutil"
)

const (
	rosterProvidersKey = "providers"
	rosterRoomsKey     = "rooms"
)

type Config struct {
	// Location is the practice's canonical timezone.
	Location *time.Location
	// SlotMinutes is the base booking granularity.
	SlotMinutes int
	// RosterTTL bounds how long the provider/room roster is served from cache.
	RosterTTL time.Duration
}

type Service struct {
	repo        repository.SchedulingRepository
	broker      *realtime.Broker
	relay       *realtime.Relay
	metrics     *metrics.SchedulingMetrics
	logger      zerolog.Logger
	loc         *time.Location
	slotMinutes int
	roster      *gocache.Cache
	now         func() time.Time
}

type Option func(*Service)

func WithRelay(relay *realtime.Relay) Option {
	return func(s *Service) { s.relay = relay }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repository.SchedulingRepository, broker *realtime.Broker, cfg Config, opts ...Option) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	slotMinutes := cfg.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = 15
	}
	rosterTTL := cfg.RosterTTL
	if rosterTTL <= 0 {
		rosterTTL = 30 * time.Second
	}

	s := &Service{
		repo:        repo,
		broker:      broker,
		logger:      zerolog.Nop(),
		loc:         loc,
		slotMinutes: slotMinutes,
		roster:      gocache.New(rosterTTL, 2*rosterTTL),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cursor exposes the broker cursor for the long-poll surface.
func (s *Service) Cursor() int64 {
	return s.broker.Cursor()
}

// List returns the appointments whose start falls in the requested window,
// the provider and room rosters for grid rendering, and the broker cursor
// captured with the result so callers can long-poll without a gap.
func (s *Service) List(ctx context.Context, query *model.ListAppointmentsQuery) (*model.AppointmentListing, error) {
	if query == nil {
		query = &model.ListAppointmentsQuery{}
	}

	rangeStart, rangeEnd, err := timeutil.ListingRange(query.Start, query.End, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	filters := &model.AppointmentFilters{
		RangeStart:  rangeStart,
		RangeEnd:    rangeEnd,
		ProviderIDs: query.ProviderIDs,
		RoomIDs:     query.RoomIDs,
	}
	if query.Status != "" {
		status := model.AppointmentStatus(query.Status)
		if status != model.AppointmentStatusScheduled && status != model.AppointmentStatusCancelled {
			return nil, errors.BadRequest(fmt.Sprintf("unknown status %q", query.Status), nil)
		}
		filters.Status = status
	}

	details, err := s.repo.ListAppointmentDetails(ctx, filters)
	if err != nil {
		return nil, errors.Internal(err)
	}

	if query.IncludeNotes && len(details) > 0 {
		ids := make([]uuid.UUID, 0, len(details))
		byID := make(map[uuid.UUID]*model.AppointmentDetail, len(details))
		for _, detail := range details {
			ids = append(ids, detail.ID)
			byID[detail.ID] = detail
		}
		notes, err := s.repo.ListNotes(ctx, ids)
		if err != nil {
			return nil, errors.Internal(err)
		}
		for _, note := range notes {
			if detail, ok := byID[note.AppointmentID]; ok {
				detail.Notes = append(detail.Notes, *note)
			}
		}
	}

	providers, rooms, err := s.rosters(ctx)
	if err != nil {
		return nil, errors.Internal(err)
	}

	return &model.AppointmentListing{
		Appointments: details,
		Providers:    providers,
		Rooms:        rooms,
		Meta: model.ListMeta{
			Start:    rangeStart,
			End:      rangeEnd,
			Timezone: s.loc.String(),
			Cursor:   s.broker.Cursor(),
		},
	}, nil
}

// Create books a slot for a (provider, room, patient) triple. The overlap
// check, the insert, the notes and the availability refresh run in one
// serializable transaction; a failure at any step leaves no partial writes.
func (s *Service) Create(ctx context.Context, input *model.CreateAppointmentRequest, actor model.Actor) (*model.AppointmentDetail, error) {
	start, err := timeutil.NormalizeInstant(input.StartAt, s.loc)
	if err != nil {
		return nil, err
	}

	provider, err := s.repo.GetProvider(ctx, input.ProviderID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if provider == nil {
		return nil, errors.NotFound(errors.CodeProviderNotFound, "provider")
	}

	room, err := s.repo.GetRoom(ctx, input.RoomID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if room == nil {
		return nil, errors.NotFound(errors.CodeRoomNotFound, "room")
	}

	patient, err := s.repo.GetPatient(ctx, input.PatientID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if patient == nil {
		return nil, errors.NotFound(errors.CodePatientNotFound, "patient")
	}

	if !timeutil.IsSlotAligned(start, s.slotMinutes) {
		return nil, errors.InvalidSlotAlignment(s.slotMinutes)
	}

	slotMinutes := input.DurationMinutes
	if slotMinutes == 0 {
		slotMinutes = provider.DefaultDurationMinutes
	}
	if slotMinutes == 0 {
		slotMinutes = s.slotMinutes
	}
	if slotMinutes%s.slotMinutes != 0 {
		return nil, errors.InvalidSlotDuration(s.slotMinutes)
	}

	end := start.Add(time.Duration(slotMinutes) * time.Minute)
	now := s.now()
	began := time.Now()

	appointment := &model.Appointment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		ProviderID:    input.ProviderID,
		RoomID:        input.RoomID,
		PatientID:     input.PatientID,
		Title:         input.Title,
		Status:        model.AppointmentStatusScheduled,
		Timezone:      s.loc.String(),
		StartAt:       start,
		EndAt:         end,
		SlotMinutes:   slotMinutes,
		CreatedBy:     actor.ID,
		CreatedByRole: actor.Role,
	}

	err = s.repo.InTx(ctx, func(tx repository.SchedulingRepository) error {
		overlap, err := tx.HasOverlap(ctx, input.ProviderID, input.RoomID, start, end)
		if err != nil {
			return errors.Internal(err)
		}
		if overlap {
			return errors.DoubleBooking()
		}

		if err := tx.CreateAppointment(ctx, appointment); err != nil {
			return errors.Internal(err)
		}

		for _, note := range input.Notes {
			if err := tx.AddNote(ctx, &model.AppointmentNote{
				ID:            uuid.New(),
				AppointmentID: appointment.ID,
				AuthorRole:    actor.Role,
				AuthorName:    actor.ID,
				Kind:          model.NoteKindNote,
				Body:          note.Body,
				CreatedAt:     now,
			}); err != nil {
				return errors.Internal(err)
			}
		}

		if err := tx.AddNote(ctx, &model.AppointmentNote{
			ID:            uuid.New(),
			AppointmentID: appointment.ID,
			AuthorRole:    actor.Role,
			AuthorName:    actor.ID,
			Kind:          model.NoteKindNotification,
			Body:          fmt.Sprintf("slot created by %s", actor.Role),
			CreatedAt:     now,
		}); err != nil {
			return errors.Internal(err)
		}

		return refreshAvailability(ctx, tx, input.ProviderID, now)
	})
	if err != nil {
		if errors.HasCode(err, errors.CodeDoubleBooking) && s.metrics != nil {
			s.metrics.BookingConflicts.Inc()
		}
		return nil, err
	}

	s.roster.Delete(rosterProvidersKey)

	detail, err := s.detail(ctx, appointment.ID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, errors.Internal(fmt.Errorf("appointment %s vanished after commit", appointment.ID))
	}

	event := s.broker.Emit(realtime.EventAppointmentCreated, detail)
	s.relay.Publish(event)

	if s.metrics != nil {
		s.metrics.BookingsTotal.Inc()
		s.metrics.BookingLatency.Observe(time.Since(began).Seconds())
	}
	s.logger.Info().
		Str("appointment_id", appointment.ID.String()).
		Str("provider_id", input.ProviderID.String()).
		Time("start_at", start).
		Int("slot_minutes", slotMinutes).
		Msg("appointment booked")

	return detail, nil
}

// Cancel moves an appointment to its terminal cancelled state. Cancelling an
// already-cancelled appointment is a no-op that returns the current detail
// without a new note or event.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, input *model.CancelAppointmentRequest, actor model.Actor) (*model.AppointmentDetail, error) {
	if input == nil {
		input = &model.CancelAppointmentRequest{}
	}

	appointment, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if appointment == nil {
		return nil, errors.NotFound(errors.CodeAppointmentNotFound, "appointment")
	}

	if appointment.Status == model.AppointmentStatusCancelled {
		return s.detail(ctx, id)
	}

	now := s.now()
	body := "cancelled"
	if input.Reason != nil {
		body = fmt.Sprintf("cancelled: %s", *input.Reason)
	}

	err = s.repo.InTx(ctx, func(tx repository.SchedulingRepository) error {
		if err := tx.MarkCancelled(ctx, id, input.Reason, now); err != nil {
			return errors.Internal(err)
		}

		if err := tx.AddNote(ctx, &model.AppointmentNote{
			ID:            uuid.New(),
			AppointmentID: id,
			AuthorRole:    actor.Role,
			AuthorName:    actor.ID,
			Kind:          model.NoteKindNotification,
			Body:          body,
			CreatedAt:     now,
		}); err != nil {
			return errors.Internal(err)
		}

		return refreshAvailability(ctx, tx, appointment.ProviderID, now)
	})
	if err != nil {
		return nil, err
	}

	s.roster.Delete(rosterProvidersKey)

	detail, err := s.detail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, errors.NotFound(errors.CodeAppointmentNotFound, "appointment")
	}

	event := s.broker.Emit(realtime.EventAppointmentCancelled, detail)
	s.relay.Publish(event)

	if s.metrics != nil {
		s.metrics.CancellationsTotal.Inc()
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Msg("appointment cancelled")

	return detail, nil
}

func (s *Service) detail(ctx context.Context, id uuid.UUID) (*model.AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, errors.Internal(err)
	}
	if detail == nil {
		return nil, nil
	}

	notes, err := s.repo.ListNotes(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, errors.Internal(err)
	}
	for _, note := range notes {
		detail.Notes = append(detail.Notes, *note)
	}
	return detail, nil
}

func (s *Service) rosters(ctx context.Context) ([]*model.Provider, []*model.Room, error) {
	var providers []*model.Provider
	if cached, ok := s.roster.Get(rosterProvidersKey); ok {
		providers = cached.([]*model.Provider)
	} else {
		var err error
		providers, err = s.repo.ListActiveProviders(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.roster.SetDefault(rosterProvidersKey, providers)
	}

	var rooms []*model.Room
	if cached, ok := s.roster.Get(rosterRoomsKey); ok {
		rooms = cached.([]*model.Room)
	} else {
		var err error
		rooms, err = s.repo.ListRooms(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.roster.SetDefault(rosterRoomsKey, rooms)
	}

	return providers, rooms, nil
}
