package runtime

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/domain/event"
	"chat-pubsub/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const DefaultReceiveWait = 250 * time.Millisecond

type State int

const (
	StateDisconnected State = iota
	StateIdle
	StateListening
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	default:
		return "disconnected"
	}
}

type opKind int

const (
	opSubscribe opKind = iota
	opUnsubscribe
)

// subscriptionOp is a subscribe or unsubscribe submitted while a listen
// loop owns the connection. The loop applies it between two deliveries.
type subscriptionOp struct {
	kind    opKind
	channel domain.Channel
	done    chan error
}

// Session owns one subscriber connection and the live set of channels.
//
// Lock discipline: mu guards conn, channels, state and pending. While idle,
// subscribe and unsubscribe run on the caller goroutine with mu held. While
// listening they are queued in pending and the listen goroutine applies
// them between receives, so the set never changes in the middle of a decode.
type Session struct {
	ID          uuid.UUID
	log         *slog.Logger
	broker      contract.Broker
	receiveWait time.Duration

	mu       sync.Mutex
	conn     contract.Connection
	channels map[domain.Channel]struct{}
	state    State
	pending  []subscriptionOp
}

// NewSession opens the subscriber connection. A receiveWait of zero or less
// falls back to DefaultReceiveWait.
func NewSession(ctx context.Context, log *slog.Logger, broker contract.Broker, receiveWait time.Duration) (*Session, error) {
	conn, err := broker.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrBrokerConnection, err)
	}
	if receiveWait <= 0 {
		receiveWait = DefaultReceiveWait
	}
	id := uuid.New()
	return &Session{
		ID:          id,
		log:         log.With("session", id.String()),
		broker:      broker,
		receiveWait: receiveWait,
		conn:        conn,
		channels:    make(map[domain.Channel]struct{}),
		state:       StateIdle,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Channels returns the subscribed channels, sorted.
func (s *Session) Channels() []domain.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelsLocked()
}

func (s *Session) IsSubscribed(channel domain.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *Session) Subscribe(ctx context.Context, channel domain.Channel) error {
	return s.submit(ctx, subscriptionOp{kind: opSubscribe, channel: channel})
}

func (s *Session) Unsubscribe(ctx context.Context, channel domain.Channel) error {
	return s.submit(ctx, subscriptionOp{kind: opUnsubscribe, channel: channel})
}

// Publish sends "<sender>: <body>" whether or not this session is subscribed.
// An empty sender never reaches the broker. A broker error is reported as
// errors.ErrPublishFailed and leaves the session usable.
func (s *Session) Publish(ctx context.Context, channel domain.Channel, sender, body string) error {
	if sender == "" {
		return errors.ErrNotIdentified
	}
	if channel == "" {
		return errors.ErrEmptyChannel
	}
	if s.State() == StateDisconnected {
		return errors.ErrSessionClosed
	}
	if err := s.broker.Publish(ctx, channel, domain.FormatPayload(sender, body)); err != nil {
		return fmt.Errorf("%w: publish on %s: %w", errors.ErrPublishFailed, channel, err)
	}
	s.log.Debug("Message published", "channel", channel, "sender", sender)
	return nil
}

// Listen subscribes to channel if needed and forwards every message frame
// of a subscribed channel to sink, in broker order. It returns nil once ctx
// is cancelled or the stream ends, and leaves the subscription set as it was.
// A receive failure triggers one reconnect; a failure before the new
// connection answered even once is returned as errors.ErrBrokerConnection.
func (s *Session) Listen(ctx context.Context, channel domain.Channel, sink contract.EventSink) error {
	if channel == "" {
		return errors.ErrEmptyChannel
	}

	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
		s.mu.Unlock()
		return errors.ErrSessionClosed
	case StateListening:
		s.mu.Unlock()
		return errors.ErrAlreadyListening
	}
	if err := s.applyLocked(ctx, subscriptionOp{kind: opSubscribe, channel: channel}); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = StateListening
	s.mu.Unlock()
	defer s.stopListening(ctx)

	s.log.Info("Listening", "channel", channel)
	reconnected := false
	for {
		conn := s.applyPending(ctx)
		if ctx.Err() != nil {
			s.log.Debug("Listen cancelled", "channel", channel)
			return nil
		}

		env, err := conn.Receive(ctx, s.receiveWait)
		switch {
		case err == nil:
			reconnected = false
			s.deliver(ctx, env, sink)
		case errors.Is(err, errors.ErrReceiveTimeout):
			reconnected = false
			continue
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			s.log.Info("Stream ended", "channel", channel)
			return nil
		case s.State() == StateDisconnected:
			return nil
		case reconnected:
			return fmt.Errorf("%w: %w", errors.ErrBrokerConnection, err)
		default:
			s.log.Warn("Receive failed, reconnecting once", "error", err)
			if rerr := s.reconnect(ctx); rerr != nil {
				return fmt.Errorf("%w: %w", errors.ErrBrokerConnection, errors.Join(err, rerr))
			}
			reconnected = true
		}
	}
}

// Close releases the subscriber connection. Pending operations fail with
// errors.ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisconnected {
		return nil
	}
	s.state = StateDisconnected
	for _, op := range s.pending {
		op.done <- errors.ErrSessionClosed
	}
	s.pending = nil
	return s.conn.Close()
}

func (s *Session) submit(ctx context.Context, op subscriptionOp) error {
	if op.channel == "" {
		return errors.ErrEmptyChannel
	}

	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
		s.mu.Unlock()
		return errors.ErrSessionClosed
	case StateListening:
		op.done = make(chan error, 1)
		s.pending = append(s.pending, op)
		s.mu.Unlock()
		select {
		case err := <-op.done:
			return err
		case <-ctx.Done():
			return s.withdraw(ctx, op)
		}
	}
	defer s.mu.Unlock()
	return s.applyLocked(ctx, op)
}

// withdraw takes op back out of the queue after its caller gave up. An op
// the loop already applied reports its own result instead.
func (s *Session) withdraw(ctx context.Context, op subscriptionOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, queued := range s.pending {
		if queued.done == op.done {
			s.pending = slices.Delete(s.pending, i, i+1)
			return ctx.Err()
		}
	}
	return <-op.done
}

// applyPending runs queued operations and returns the connection to
// receive from next.
func (s *Session) applyPending(ctx context.Context) contract.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked(context.WithoutCancel(ctx))
	return s.conn
}

func (s *Session) stopListening(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateListening {
		return
	}
	s.state = StateIdle
	s.drainLocked(context.WithoutCancel(ctx))
}

func (s *Session) drainLocked(ctx context.Context) {
	ops := s.pending
	s.pending = nil
	for _, op := range ops {
		op.done <- s.applyLocked(ctx, op)
	}
}

// applyLocked performs op against the broker and the set. A failed broker
// call is retried once on a fresh connection.
func (s *Session) applyLocked(ctx context.Context, op subscriptionOp) error {
	err := s.callLocked(ctx, op)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	s.log.Warn("Broker call failed, reconnecting once", "channel", op.channel, "error", err)
	if rerr := s.reconnectLocked(ctx); rerr != nil {
		return s.wrapOpError(op, errors.Join(err, rerr))
	}
	return s.wrapOpError(op, s.callLocked(ctx, op))
}

func (s *Session) callLocked(ctx context.Context, op subscriptionOp) error {
	_, member := s.channels[op.channel]
	switch op.kind {
	case opSubscribe:
		if member {
			return nil
		}
		if err := s.conn.Subscribe(ctx, op.channel); err != nil {
			return err
		}
		s.channels[op.channel] = struct{}{}
		s.log.Debug("Subscribed", "channel", op.channel)
	case opUnsubscribe:
		if !member {
			return nil
		}
		if err := s.conn.Unsubscribe(ctx, op.channel); err != nil {
			return err
		}
		delete(s.channels, op.channel)
		s.log.Debug("Unsubscribed", "channel", op.channel)
	}
	return nil
}

func (s *Session) wrapOpError(op subscriptionOp, err error) error {
	if err == nil {
		return nil
	}
	verb := "subscribe"
	if op.kind == opUnsubscribe {
		verb = "unsubscribe"
	}
	return fmt.Errorf("%w: %s %s: %w", errors.ErrBrokerConnection, verb, op.channel, err)
}

func (s *Session) reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectLocked(ctx)
}

// reconnectLocked swaps in a new connection subscribed to the whole set.
func (s *Session) reconnectLocked(ctx context.Context) error {
	if err := s.conn.Close(); err != nil {
		s.log.Debug("Closing broken connection failed", "error", err)
	}
	conn, err := s.broker.Open(ctx)
	if err != nil {
		return err
	}
	if channels := s.channelsLocked(); len(channels) > 0 {
		if err = conn.Subscribe(ctx, channels...); err != nil {
			_ = conn.Close()
			return err
		}
	}
	s.conn = conn
	s.log.Info("Reconnected to broker", "channels", len(s.channels))
	return nil
}

func (s *Session) channelsLocked() []domain.Channel {
	channels := lo.Keys(s.channels)
	slices.Sort(channels)
	return channels
}

func (s *Session) deliver(ctx context.Context, env contract.Envelope, sink contract.EventSink) {
	if env.Kind != contract.KindMessage {
		s.log.Debug("Control frame", "kind", env.Kind, "channel", env.Channel)
		return
	}
	if !s.IsSubscribed(env.Channel) {
		s.log.Debug("Dropping frame for channel not subscribed", "channel", env.Channel)
		return
	}

	var evt event.DomainEvent
	if utf8.Valid(env.Payload) {
		evt = event.MessageReceived{
			Message: domain.ParsePayload(env.Channel, string(env.Payload), time.Now().UTC()),
		}
	} else {
		perr := errors.NewMalformedPayloadError(env.Channel.String(), env.Payload)
		s.log.Warn("Skipping malformed payload", "channel", env.Channel, "mime", perr.MimeType)
		evt = event.PayloadRejected{From: env.Channel, Err: perr, At: time.Now().UTC()}
	}
	if err := sink.Consume(ctx, evt); err != nil {
		s.log.Warn("Sink failed to consume event", "channel", env.Channel, "error", err)
	}
}
