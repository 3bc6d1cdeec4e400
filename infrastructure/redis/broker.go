package redis

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/errors"
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// Broker publishes through the shared client and opens one PubSub per
// subscriber connection.
type Broker struct {
	client *goredis.Client
	log    *slog.Logger
}

func NewBroker(client *goredis.Client, log *slog.Logger) *Broker {
	return &Broker{client: client, log: log}
}

func (b *Broker) Publish(ctx context.Context, channel domain.Channel, payload string) error {
	receivers, err := b.client.Publish(ctx, channel.String(), payload).Result()
	if err != nil {
		return err
	}
	b.log.Debug("Published", "channel", channel, "receivers", receivers)
	return nil
}

func (b *Broker) Open(ctx context.Context) (contract.Connection, error) {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Connection{pubsub: b.client.Subscribe(ctx)}, nil
}

type Connection struct {
	pubsub *goredis.PubSub
}

func (c *Connection) Subscribe(ctx context.Context, channels ...domain.Channel) error {
	return c.pubsub.Subscribe(ctx, toNames(channels)...)
}

func (c *Connection) Unsubscribe(ctx context.Context, channels ...domain.Channel) error {
	return c.pubsub.Unsubscribe(ctx, toNames(channels)...)
}

// Receive relies on the read deadline rather than ctx: the underlying
// socket read does not observe cancellation.
func (c *Connection) Receive(ctx context.Context, wait time.Duration) (contract.Envelope, error) {
	frame, err := c.pubsub.ReceiveTimeout(ctx, wait)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return contract.Envelope{}, errors.ErrReceiveTimeout
		case errors.Is(err, goredis.ErrClosed):
			return contract.Envelope{}, io.EOF
		}
		return contract.Envelope{}, err
	}
	return toEnvelope(frame), nil
}

func (c *Connection) Close() error {
	err := c.pubsub.Close()
	if errors.Is(err, goredis.ErrClosed) {
		return nil
	}
	return err
}

func toEnvelope(frame any) contract.Envelope {
	switch f := frame.(type) {
	case *goredis.Message:
		return contract.Envelope{
			Kind:    contract.KindMessage,
			Channel: domain.Channel(f.Channel),
			Payload: []byte(f.Payload),
		}
	case *goredis.Subscription:
		kind := contract.KindOther
		switch f.Kind {
		case "subscribe":
			kind = contract.KindSubscribe
		case "unsubscribe":
			kind = contract.KindUnsubscribe
		}
		return contract.Envelope{Kind: kind, Channel: domain.Channel(f.Channel)}
	default:
		return contract.Envelope{Kind: contract.KindOther}
	}
}

func toNames(channels []domain.Channel) []string {
	return lo.Map(channels, func(c domain.Channel, _ int) string { return c.String() })
}
