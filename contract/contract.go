//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-pubsub/domain"
	"chat-pubsub/domain/event"
	"context"
	"time"
)

// KeyValueStore holds profiles and topic facts as flat string hashes.
// Implementations decode stored bytes to text; callers never see raw bytes.
// Missing keys and fields are reported as errors.ErrNotFound.
type KeyValueStore interface {
	SetFields(ctx context.Context, key string, fields map[string]string) error
	GetFields(ctx context.Context, key string) (map[string]string, error)
	GetField(ctx context.Context, key, field string) (string, error)
}

type EnvelopeKind int

const (
	KindMessage EnvelopeKind = iota
	KindSubscribe
	KindUnsubscribe
	KindOther
)

// Envelope is one inbound frame read from a broker connection.
type Envelope struct {
	Kind    EnvelopeKind
	Channel domain.Channel
	Payload []byte
}

// Broker publishes on a shared client and opens subscriber connections.
type Broker interface {
	Publish(ctx context.Context, channel domain.Channel, payload string) error
	Open(ctx context.Context) (Connection, error)
}

// Connection is a connection-scoped subscriber.
// Receive waits at most wait for the next frame and returns
// errors.ErrReceiveTimeout when none arrived; io.EOF means the stream ended.
type Connection interface {
	Subscribe(ctx context.Context, channels ...domain.Channel) error
	Unsubscribe(ctx context.Context, channels ...domain.Channel) error
	Receive(ctx context.Context, wait time.Duration) (Envelope, error)
	Close() error
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

type ISession interface {
	Subscribe(ctx context.Context, channel domain.Channel) error
	Unsubscribe(ctx context.Context, channel domain.Channel) error
	Publish(ctx context.Context, channel domain.Channel, sender, body string) error
	Listen(ctx context.Context, channel domain.Channel, sink EventSink) error
	Channels() []domain.Channel
}
