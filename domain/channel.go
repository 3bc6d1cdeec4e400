package domain

import (
	"chat-pubsub/errors"
	"strings"
)

// Channel is a broker topic name. It has no existence beyond the broker.
type Channel string

func NewChannel(name string) (Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.ErrEmptyChannel
	}
	return Channel(name), nil
}

func (c Channel) String() string {
	return string(c)
}
