package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/osdentaire/agenda-api/internal/repository"
	"github.com/osdentaire/agenda-api/pkg/errors"
)

// refreshAvailability recomputes a provider's cached next_available_at from
// the earliest future scheduled appointment. It runs on the transaction-bound
// repository of the booking or cancellation it follows, so a concurrent
// reader never observes the appointment table and the cache out of sync.
func refreshAvailability(ctx context.Context, tx repository.SchedulingRepository, providerID uuid.UUID, now time.Time) error {
	next, err := tx.NextScheduledStart(ctx, providerID, now)
	if err != nil {
		return errors.Internal(err)
	}
	if err := tx.SetProviderNextAvailable(ctx, providerID, next); err != nil {
		return errors.Internal(err)
	}
	return nil
}

// RecomputeAvailability refreshes the availability cache of every provider.
// The booking path keeps the cache current on its own; this full pass is for
// the maintenance worker, healing drift after restores or manual data edits.
func (s *Service) RecomputeAvailability(ctx context.Context) (int, error) {
	ids, err := s.repo.ListProviderIDs(ctx)
	if err != nil {
		return 0, errors.Internal(err)
	}

	now := s.now()
	for _, id := range ids {
		providerID := id
		err := s.repo.InTx(ctx, func(tx repository.SchedulingRepository) error {
			return refreshAvailability(ctx, tx, providerID, now)
		})
		if err != nil {
			return 0, err
		}
	}

	s.roster.Delete(rosterProvidersKey)
	return len(ids), nil
}
