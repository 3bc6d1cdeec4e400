// Package domain contains core concepts of the chat client.
// This file defines Message and its text wire format.
// Messages are ephemeral: they exist only between publish and listen.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const senderSeparator = ": "

// Message represents one inbound chat line.
type Message struct {
	ID         uuid.UUID // client-side, for log correlation only
	Channel    Channel
	Sender     string
	Body       string
	ReceivedAt time.Time
}

// FormatPayload renders the broker payload "<sender>: <body>".
func FormatPayload(sender, body string) string {
	return sender + senderSeparator + body
}

// ParsePayload splits a payload produced by FormatPayload. Payloads
// published by other clients without a sender keep an empty Sender.
func ParsePayload(channel Channel, payload string, at time.Time) Message {
	msg := Message{ID: uuid.New(), Channel: channel, Body: payload, ReceivedAt: at}
	if sender, body, ok := strings.Cut(payload, senderSeparator); ok {
		msg.Sender = sender
		msg.Body = body
	}
	return msg
}

// Text is the payload again, as shown to the user.
func (m Message) Text() string {
	if m.Sender == "" {
		return m.Body
	}
	return FormatPayload(m.Sender, m.Body)
}
