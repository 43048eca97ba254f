package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/osdentaire/agenda-api/pkg/messaging"
)

// DefaultRelayChannel is the pub/sub channel scheduling events are mirrored to.
const DefaultRelayChannel = "agenda.appointments"

// Relay mirrors broker events onto an external message broker so sibling
// processes and downstream consumers see the same stream long-poll clients do.
// Publishing is best effort: a broken relay must never fail a booking.
type Relay struct {
	broker  messaging.Broker
	channel string
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRelay(broker messaging.Broker, channel string, logger zerolog.Logger) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{
		broker:  broker,
		channel: channel,
		logger:  logger,
		timeout: 2 * time.Second,
	}
}

// Publish forwards an event, detached from the request context so a client
// disconnect cannot abort the mirror write.
func (r *Relay) Publish(event Event) {
	if r == nil || r.broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.broker.Publish(ctx, r.channel, event); err != nil {
		r.logger.Warn().
			Err(err).
			Str("channel", r.channel).
			Int64("cursor", event.Cursor).
			Msg("failed to relay scheduling event")
	}
}
