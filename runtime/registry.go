package runtime

import (
	"chat-pubsub/contract"
	"chat-pubsub/domain"
	"chat-pubsub/errors"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultInboxSize = 64

type Set map[string]struct{}

// Registry is an in-process broker: it maps channels to the connections
// subscribed to them and copies every published payload into their inbox.
// Delivery is best effort; a full inbox drops the frame.
type Registry struct {
	log       *slog.Logger
	inboxSize int

	mu          sync.RWMutex
	connections map[string]*localConnection
	members     map[domain.Channel]Set
}

func NewRegistry(log *slog.Logger, inboxSize int) *Registry {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Registry{
		log:         log,
		inboxSize:   inboxSize,
		connections: make(map[string]*localConnection),
		members:     make(map[domain.Channel]Set),
	}
}

func (r *Registry) Publish(_ context.Context, channel domain.Channel, payload string) error {
	r.PublishBytes(channel, []byte(payload))
	return nil
}

// PublishBytes delivers a raw payload and returns how many connections
// accepted it.
func (r *Registry) PublishBytes(channel domain.Channel, payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for id := range r.members[channel] {
		conn, ok := r.connections[id]
		if !ok {
			continue
		}
		if conn.push(contract.Envelope{Kind: contract.KindMessage, Channel: channel, Payload: payload}) {
			delivered++
		} else {
			r.log.Warn("Inbox full, frame dropped", "connection", id, "channel", channel)
		}
	}
	return delivered
}

func (r *Registry) Open(_ context.Context) (contract.Connection, error) {
	conn := &localConnection{
		id:       uuid.NewString(),
		registry: r,
		inbox:    make(chan contract.Envelope, r.inboxSize),
		closed:   make(chan struct{}),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.id] = conn
	return conn, nil
}

// Subscribers returns how many connections listen on channel.
func (r *Registry) Subscribers(channel domain.Channel) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[channel])
}

func (r *Registry) subscribe(id string, channel domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[channel]; !ok {
		r.members[channel] = make(Set)
	}
	r.members[channel][id] = struct{}{}
}

// unsubscribe leaves no empty sets behind.
func (r *Registry) unsubscribe(id string, channel domain.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.members[channel]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.members, channel)
		}
	}
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, id)
	for channel, members := range r.members {
		delete(members, id)
		if len(members) == 0 {
			delete(r.members, channel)
		}
	}
}

type localConnection struct {
	id        string
	registry  *Registry
	inbox     chan contract.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *localConnection) Subscribe(_ context.Context, channels ...domain.Channel) error {
	if c.isClosed() {
		return errors.ErrSessionClosed
	}
	for _, channel := range channels {
		c.registry.subscribe(c.id, channel)
		c.push(contract.Envelope{Kind: contract.KindSubscribe, Channel: channel})
	}
	return nil
}

func (c *localConnection) Unsubscribe(_ context.Context, channels ...domain.Channel) error {
	if c.isClosed() {
		return errors.ErrSessionClosed
	}
	for _, channel := range channels {
		c.registry.unsubscribe(c.id, channel)
		c.push(contract.Envelope{Kind: contract.KindUnsubscribe, Channel: channel})
	}
	return nil
}

func (c *localConnection) Receive(ctx context.Context, wait time.Duration) (contract.Envelope, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case env := <-c.inbox:
		return env, nil
	case <-c.closed:
		return contract.Envelope{}, io.EOF
	case <-ctx.Done():
		return contract.Envelope{}, ctx.Err()
	case <-timeout:
		return contract.Envelope{}, errors.ErrReceiveTimeout
	}
}

func (c *localConnection) Close() error {
	c.closeOnce.Do(func() {
		c.registry.remove(c.id)
		close(c.closed)
	})
	return nil
}

func (c *localConnection) push(env contract.Envelope) bool {
	select {
	case c.inbox <- env:
		return true
	default:
		return false
	}
}

func (c *localConnection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
