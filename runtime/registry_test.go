package runtime

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/errors"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func receiveMessage(t *testing.T, conn contract.Connection) contract.Envelope {
	t.Helper()
	for {
		env, err := conn.Receive(context.Background(), time.Second)
		require.NoError(t, err)
		if env.Kind == contract.KindMessage {
			return env
		}
	}
}

func TestRegistry_Publish_One_Channel_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry(slog.Default(), 8)
	channel := domain.Channel("general")

	// Given two connections subscribed to the same channel
	alice, err := registry.Open(ctx)
	req.NoError(err)
	bob, err := registry.Open(ctx)
	req.NoError(err)
	req.NoError(alice.Subscribe(ctx, channel))
	req.NoError(bob.Subscribe(ctx, channel))
	req.Equal(2, registry.Subscribers(channel))

	// When a payload is published
	req.NoError(registry.Publish(ctx, channel, "carol: hello"))

	// Then both receive it
	for _, conn := range []contract.Connection{alice, bob} {
		env := receiveMessage(t, conn)
		req.Equal(channel, env.Channel)
		req.Equal([]byte("carol: hello"), env.Payload)
	}
}

func TestRegistry_Subscribe_Acknowledged(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry(slog.Default(), 8)
	conn, err := registry.Open(ctx)
	req.NoError(err)

	req.NoError(conn.Subscribe(ctx, "general"))
	req.NoError(conn.Unsubscribe(ctx, "general"))

	env, err := conn.Receive(ctx, time.Second)
	req.NoError(err)
	req.Equal(contract.Envelope{Kind: contract.KindSubscribe, Channel: "general"}, env)
	env, err = conn.Receive(ctx, time.Second)
	req.NoError(err)
	req.Equal(contract.Envelope{Kind: contract.KindUnsubscribe, Channel: "general"}, env)
}

func TestRegistry_Unsubscribe_Removes_Empty_Channel(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry(slog.Default(), 8)
	conn, err := registry.Open(ctx)
	req.NoError(err)

	req.NoError(conn.Subscribe(ctx, "general"))
	req.NoError(conn.Unsubscribe(ctx, "general"))

	req.Equal(0, registry.Subscribers("general"))
	req.Empty(registry.members)
	req.Equal(0, registry.PublishBytes("general", []byte("nobody: listens")))
}

func TestRegistry_Receive_Timeout_And_Close(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry(slog.Default(), 8)
	conn, err := registry.Open(ctx)
	req.NoError(err)
	req.NoError(conn.Subscribe(ctx, "general"))
	_, err = conn.Receive(ctx, time.Second)
	req.NoError(err)

	// Given nothing is published
	_, err = conn.Receive(ctx, 5*time.Millisecond)
	req.ErrorIs(err, errors.ErrReceiveTimeout)

	// When the connection is closed
	req.NoError(conn.Close())
	req.NoError(conn.Close())

	// Then the stream ends and the registry forgets it
	_, err = conn.Receive(ctx, time.Second)
	req.ErrorIs(err, io.EOF)
	req.Equal(0, registry.Subscribers("general"))
	req.ErrorIs(conn.Subscribe(ctx, "general"), errors.ErrSessionClosed)
}

func TestRegistry_Receive_Cancelled(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default(), 8)
	conn, err := registry.Open(context.Background())
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conn.Receive(ctx, 0)
	req.ErrorIs(err, context.Canceled)
}

func TestRegistry_Full_Inbox_Drops(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	registry := NewRegistry(slog.Default(), 2)
	conn, err := registry.Open(ctx)
	req.NoError(err)

	// The subscribe ack takes one slot
	req.NoError(conn.Subscribe(ctx, "general"))

	req.Equal(1, registry.PublishBytes("general", []byte("a: 1")))
	req.Equal(0, registry.PublishBytes("general", []byte("a: 2")))
}
