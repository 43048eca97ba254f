package messaging

import (
	"context"
)

// Broker is the interface for message brokers used to fan scheduling events
// out to sibling processes and external consumers.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}
