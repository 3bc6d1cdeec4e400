package event

import (
	"chat-pubsub/domain"
	"time"
)

// DomainEvent is what a listening session hands to its sink.
type DomainEvent interface {
	Channel() domain.Channel
	OccurredAt() time.Time
}

type MessageReceived struct {
	Message domain.Message
}

func (m MessageReceived) Channel() domain.Channel {
	return m.Message.Channel
}

func (m MessageReceived) OccurredAt() time.Time {
	return m.Message.ReceivedAt
}

// PayloadRejected carries a per-message decoding failure.
// The loop that produced it keeps running.
type PayloadRejected struct {
	From domain.Channel
	Err  error
	At   time.Time
}

func (p PayloadRejected) Channel() domain.Channel {
	return p.From
}

func (p PayloadRejected) OccurredAt() time.Time {
	return p.At
}
