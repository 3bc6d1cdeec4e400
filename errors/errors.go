package errors

import (
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotIdentified      = fmt.Errorf("you need to identify yourself first")
	ErrNotFound           = fmt.Errorf("no data found")
	ErrMalformedPayload   = fmt.Errorf("payload is not valid text")
	ErrBrokerConnection   = fmt.Errorf("broker connection lost")
	ErrPublishFailed      = fmt.Errorf("message could not be published")
	ErrInvalidCommand     = fmt.Errorf("invalid option")
	ErrEmptyChannel       = fmt.Errorf("channel name must not be empty")
	ErrAlreadyListening   = fmt.Errorf("session is already listening")
	ErrSessionClosed      = fmt.Errorf("session is closed")
	ErrExit               = fmt.Errorf("exit requested")
	ErrReceiveTimeout     = fmt.Errorf("no frame received within wait")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrInvalidUser        = fmt.Errorf("invalid user")
	ErrUnknownBackend     = fmt.Errorf("unknown backend")
	ErrInvalidReplaceRune = fmt.Errorf("replacement must be a single character")
)

// MalformedPayloadError is reported for a single inbound frame that could not
// be decoded as UTF-8 text. The listen loop keeps running after it.
type MalformedPayloadError struct {
	Channel  string
	MimeType string
	Size     int
}

func NewMalformedPayloadError(channel string, payload []byte) *MalformedPayloadError {
	return &MalformedPayloadError{
		Channel:  channel,
		MimeType: mimetype.Detect(payload).String(),
		Size:     len(payload),
	}
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload on %s (%s, %d bytes)", e.Channel, e.MimeType, e.Size)
}

func (e *MalformedPayloadError) Unwrap() error {
	return ErrMalformedPayload
}

// Is, As and Join are re-exported so callers importing this package
// under its own name still reach the standard helpers.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
