package runtime

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/domain/event"
	"chat-pubsub/errors"
	"chat-pubsub/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

const testWait = 20 * time.Millisecond

type collector struct {
	mu     sync.Mutex
	events []event.DomainEvent
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 100)}
}

func (c *collector) Consume(_ context.Context, e event.DomainEvent) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *collector) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, e := range c.events {
		if m, ok := e.(event.MessageReceived); ok {
			out = append(out, fmt.Sprintf("%s|%s|%s", m.Message.Channel, m.Message.Sender, m.Message.Body))
		}
	}
	return out
}

func (c *collector) rejected() []event.PayloadRejected {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.PayloadRejected
	for _, e := range c.events {
		if r, ok := e.(event.PayloadRejected); ok {
			out = append(out, r)
		}
	}
	return out
}

func newLocalSession(t *testing.T) (*Session, *Registry) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, 16)
	session, err := NewSession(context.Background(), log, registry, testWait)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session, registry
}

func startListening(t *testing.T, session *Session, channel domain.Channel, sink contract.EventSink) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Listen(ctx, channel, sink) }()
	require.Eventually(t, func() bool { return session.State() == StateListening }, time.Second, time.Millisecond)
	return cancel, done
}

func TestSession_SubscribeUnsubscribe_LastCallWins(t *testing.T) {
	const sub, unsub = true, false
	tests := []struct {
		name  string
		calls []bool
	}{
		{"single subscribe", []bool{sub}},
		{"subscribe twice", []bool{sub, sub}},
		{"unsubscribe unknown", []bool{unsub}},
		{"unsubscribe twice", []bool{sub, unsub, unsub}},
		{"resubscribe", []bool{sub, unsub, sub}},
		{"mixed", []bool{unsub, sub, sub, unsub, sub, sub, unsub}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			session, registry := newLocalSession(t)
			channel := domain.Channel("general")

			for _, call := range tt.calls {
				if call == sub {
					req.NoError(session.Subscribe(ctx, channel))
				} else {
					req.NoError(session.Unsubscribe(ctx, channel))
				}
			}

			expected := tt.calls[len(tt.calls)-1] == sub
			req.Equal(expected, session.IsSubscribed(channel))
			req.Equal(map[bool]int{true: 1, false: 0}[expected], registry.Subscribers(channel))
			if expected {
				req.Equal([]domain.Channel{channel}, session.Channels())
			} else {
				req.Empty(session.Channels())
			}
		})
	}
}

func TestSession_Subscribe_EmptyChannel(t *testing.T) {
	req := require.New(t)
	session, _ := newLocalSession(t)

	req.ErrorIs(session.Subscribe(context.Background(), ""), errors.ErrEmptyChannel)
	req.ErrorIs(session.Listen(context.Background(), "", newCollector()), errors.ErrEmptyChannel)
}

func TestSession_Publish_WithoutSender_NeverReachesBroker(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	conn := mocks.NewMockConnection(ctrl)

	// Given a session on a broker that must never be published to
	broker.EXPECT().Open(gomock.Any()).Return(conn, nil).Times(1)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	session, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.NoError(err)

	// When nobody is identified
	err = session.Publish(context.Background(), "general", "", "hello")

	// Then publishing fails before the broker
	req.ErrorIs(err, errors.ErrNotIdentified)
}

func TestSession_Publish_FormatsPayloadWithoutBeingSubscribed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	conn := mocks.NewMockConnection(ctrl)

	broker.EXPECT().Open(gomock.Any()).Return(conn, nil)
	broker.EXPECT().Publish(gomock.Any(), domain.Channel("general"), "alice: hello").Return(nil).Times(1)
	session, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.NoError(err)

	req.NoError(session.Publish(context.Background(), "general", "alice", "hello"))
	req.False(session.IsSubscribed("general"))
}

func TestSession_Publish_BrokerFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	conn := mocks.NewMockConnection(ctrl)

	broker.EXPECT().Open(gomock.Any()).Return(conn, nil)
	broker.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(fmt.Errorf("connection refused")).Times(1)
	session, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.NoError(err)

	err = session.Publish(context.Background(), "general", "alice", "hello")
	req.ErrorIs(err, errors.ErrPublishFailed)
	req.NotErrorIs(err, errors.ErrBrokerConnection)
	req.Equal(StateIdle, session.State())
}

func TestSession_Listen_OnlySubscribedMessagesInOrder(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	conn := mocks.NewMockConnection(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker.EXPECT().Open(gomock.Any()).Return(conn, nil)
	conn.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil).Times(1)

	// Given the broker delivers an ack, then C, D and C frames
	gomock.InOrder(
		conn.EXPECT().Receive(gomock.Any(), testWait).
			Return(contract.Envelope{Kind: contract.KindSubscribe, Channel: "C"}, nil),
		conn.EXPECT().Receive(gomock.Any(), testWait).
			Return(contract.Envelope{Kind: contract.KindMessage, Channel: "C", Payload: []byte("bob: a")}, nil),
		conn.EXPECT().Receive(gomock.Any(), testWait).
			Return(contract.Envelope{Kind: contract.KindMessage, Channel: "D", Payload: []byte("bob: b")}, nil),
		conn.EXPECT().Receive(gomock.Any(), testWait).
			Return(contract.Envelope{}, errors.ErrReceiveTimeout),
		conn.EXPECT().Receive(gomock.Any(), testWait).
			Return(contract.Envelope{Kind: contract.KindMessage, Channel: "C", Payload: []byte("bob: c")}, nil),
		conn.EXPECT().Receive(gomock.Any(), testWait).
			DoAndReturn(func(ctx context.Context, _ time.Duration) (contract.Envelope, error) {
				<-ctx.Done()
				return contract.Envelope{}, ctx.Err()
			}).AnyTimes(),
	)

	session, err := NewSession(ctx, slog.Default(), broker, testWait)
	req.NoError(err)

	sink := newCollector()
	done := make(chan error, 1)
	go func() { done <- session.Listen(ctx, "C", sink) }()

	// When two messages have been forwarded
	req.Eventually(func() bool { return len(sink.received()) == 2 }, time.Second, time.Millisecond)
	cancel()

	// Then only C messages came through, in broker order
	req.NoError(<-done)
	req.Equal([]string{"C|bob|a", "C|bob|c"}, sink.received())
	req.Equal(StateIdle, session.State())
}

func TestSession_Listen_MalformedPayloadKeepsLooping(t *testing.T) {
	req := require.New(t)
	session, registry := newLocalSession(t)
	sink := newCollector()

	cancel, done := startListening(t, session, "general", sink)
	defer cancel()

	// Given a binary frame followed by a text frame
	registry.PublishBytes("general", []byte{0xff, 0xfe, 0x00, 0x01})
	registry.PublishBytes("general", []byte("alice: still here"))

	// Then the bad frame is reported and the good one still arrives
	req.Eventually(func() bool { return len(sink.received()) == 1 }, time.Second, time.Millisecond)
	rejected := sink.rejected()
	req.Len(rejected, 1)
	req.ErrorIs(rejected[0].Err, errors.ErrMalformedPayload)

	var perr *errors.MalformedPayloadError
	req.True(errors.As(rejected[0].Err, &perr))
	req.Equal("general", perr.Channel)
	req.Equal(4, perr.Size)

	cancel()
	req.NoError(<-done)
}

func TestSession_Listen_CancelReturnsAndKeepsSubscriptions(t *testing.T) {
	defer goleak.VerifyNone(t)
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log, 16)
	session, err := NewSession(ctx, log, registry, testWait)
	req.NoError(err)
	defer session.Close()

	// Given two subscriptions
	req.NoError(session.Subscribe(ctx, "a"))
	req.NoError(session.Subscribe(ctx, "b"))
	before := session.Channels()

	cancel, done := startListening(t, session, "a", newCollector())

	// When the listener is cancelled
	start := time.Now()
	cancel()

	// Then it returns within about one receive cycle
	select {
	case err = <-done:
		req.NoError(err)
	case <-time.After(10 * testWait):
		req.Fail("listen did not return after cancel")
	}
	req.Less(time.Since(start), 10*testWait)

	// And the subscription set is untouched
	req.Equal(before, session.Channels())
	req.Equal(StateIdle, session.State())
}

func TestSession_Listen_AutoSubscribes(t *testing.T) {
	req := require.New(t)
	session, _ := newLocalSession(t)

	// Given the channel was joined then left
	req.NoError(session.Subscribe(context.Background(), "news"))
	req.NoError(session.Unsubscribe(context.Background(), "news"))

	// When reading it
	cancel, done := startListening(t, session, "news", newCollector())

	// Then it is subscribed again, and stays so after the read
	req.True(session.IsSubscribed("news"))
	cancel()
	req.NoError(<-done)
	req.True(session.IsSubscribed("news"))
}

func TestSession_SubscribeWhileListening_IsAppliedByTheLoop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	session, registry := newLocalSession(t)
	sink := newCollector()

	cancel, done := startListening(t, session, "a", sink)
	defer cancel()

	// When another channel is joined during the read
	req.NoError(session.Subscribe(ctx, "b"))
	req.Equal([]domain.Channel{"a", "b"}, session.Channels())
	req.Equal(1, registry.Subscribers("b"))

	// Then its messages reach the running listener without a restart
	req.NoError(registry.Publish(ctx, "b", "carol: hi"))
	req.Eventually(func() bool { return len(sink.received()) == 1 }, time.Second, time.Millisecond)
	req.Equal([]string{"b|carol|hi"}, sink.received())

	// And leaving it stops the flow
	req.NoError(session.Unsubscribe(ctx, "b"))
	req.Equal(0, registry.Subscribers("b"))
	req.Equal(0, registry.PublishBytes("b", []byte("carol: gone")))

	cancel()
	req.NoError(<-done)
}

func TestSession_Listen_Twice(t *testing.T) {
	req := require.New(t)
	session, _ := newLocalSession(t)

	cancel, done := startListening(t, session, "a", newCollector())
	defer cancel()

	req.ErrorIs(session.Listen(context.Background(), "b", newCollector()), errors.ErrAlreadyListening)

	cancel()
	req.NoError(<-done)
}

func TestSession_Listen_ReconnectsOnceThenGivesUp(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	first := mocks.NewMockConnection(ctrl)
	second := mocks.NewMockConnection(ctrl)
	boom := fmt.Errorf("connection reset by peer")

	// Given a connection that breaks, and a replacement that breaks too
	gomock.InOrder(
		broker.EXPECT().Open(gomock.Any()).Return(first, nil),
		first.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil),
		first.EXPECT().Receive(gomock.Any(), testWait).Return(contract.Envelope{}, boom),
		first.EXPECT().Close().Return(nil),
		broker.EXPECT().Open(gomock.Any()).Return(second, nil),
		second.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil),
		second.EXPECT().Receive(gomock.Any(), testWait).Return(contract.Envelope{}, boom),
	)

	session, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.NoError(err)

	// When listening
	err = session.Listen(context.Background(), "C", newCollector())

	// Then the second failure is fatal
	req.ErrorIs(err, errors.ErrBrokerConnection)
	req.True(session.IsSubscribed("C"))
}

func TestSession_Listen_QuietReconnectedLinkEarnsAnotherReconnect(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	first := mocks.NewMockConnection(ctrl)
	second := mocks.NewMockConnection(ctrl)
	third := mocks.NewMockConnection(ctrl)
	boom := fmt.Errorf("connection reset by peer")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given a link that breaks, a replacement that stays quiet for a while
	// then breaks too, and a third one that works
	gomock.InOrder(
		broker.EXPECT().Open(gomock.Any()).Return(first, nil),
		first.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil),
		first.EXPECT().Receive(gomock.Any(), testWait).Return(contract.Envelope{}, boom),
		first.EXPECT().Close().Return(nil),
		broker.EXPECT().Open(gomock.Any()).Return(second, nil),
		second.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil),
		second.EXPECT().Receive(gomock.Any(), testWait).Return(contract.Envelope{}, errors.ErrReceiveTimeout).Times(100),
		second.EXPECT().Receive(gomock.Any(), testWait).Return(contract.Envelope{}, boom),
		second.EXPECT().Close().Return(nil),
		broker.EXPECT().Open(gomock.Any()).Return(third, nil),
		third.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil),
		third.EXPECT().Receive(gomock.Any(), testWait).DoAndReturn(
			func(context.Context, time.Duration) (contract.Envelope, error) {
				cancel()
				return contract.Envelope{}, errors.ErrReceiveTimeout
			}),
	)

	session, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.NoError(err)

	// When listening
	err = session.Listen(ctx, "C", newCollector())

	// Then both failures were survived
	req.NoError(err)
	req.True(session.IsSubscribed("C"))
}

func TestSession_SubscribeWhileListening_GivenUpCallerMatchesOutcome(t *testing.T) {
	req := require.New(t)
	session, _ := newLocalSession(t)
	cancelListen, done := startListening(t, session, "general", newCollector())

	// Given a caller whose context is already over
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When it subscribes while the loop owns the connection
	err := session.Subscribe(ctx, "random")
	time.Sleep(5 * testWait)

	// Then the set agrees with what the caller was told
	req.Equal(err == nil, session.IsSubscribed("random"))
	if err != nil {
		req.ErrorIs(err, context.Canceled)
	}

	cancelListen()
	req.NoError(<-done)
}

func TestSession_Subscribe_RetriesOnFreshConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)
	first := mocks.NewMockConnection(ctrl)
	second := mocks.NewMockConnection(ctrl)

	gomock.InOrder(
		broker.EXPECT().Open(gomock.Any()).Return(first, nil),
		first.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(fmt.Errorf("broken pipe")),
		first.EXPECT().Close().Return(nil),
		broker.EXPECT().Open(gomock.Any()).Return(second, nil),
		second.EXPECT().Subscribe(gomock.Any(), domain.Channel("C")).Return(nil),
	)

	session, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.NoError(err)

	req.NoError(session.Subscribe(context.Background(), "C"))
	req.Equal([]domain.Channel{"C"}, session.Channels())
}

func TestSession_Open_Refused(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	broker := mocks.NewMockBroker(ctrl)

	broker.EXPECT().Open(gomock.Any()).Return(nil, fmt.Errorf("connection refused"))

	_, err := NewSession(context.Background(), slog.Default(), broker, testWait)
	req.ErrorIs(err, errors.ErrBrokerConnection)
}

func TestSession_Close(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	session, _ := newLocalSession(t)

	req.NoError(session.Close())
	req.NoError(session.Close())

	req.Equal(StateDisconnected, session.State())
	req.ErrorIs(session.Subscribe(ctx, "a"), errors.ErrSessionClosed)
	req.ErrorIs(session.Publish(ctx, "a", "alice", "hi"), errors.ErrSessionClosed)
	req.ErrorIs(session.Listen(ctx, "a", newCollector()), errors.ErrSessionClosed)
}
