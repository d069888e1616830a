// Package transport delivers rendered messages to a mail provider.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Message is a single fully rendered email.
type Message struct {
	To        string
	FromName  string
	FromEmail string
	Subject   string
	HTML      string
	Headers   map[string]string
}

// Transport sends one message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// SendError is returned by transports when the provider rejected or failed
// a send. Permanent errors will not succeed on retry.
type SendError struct {
	Permanent bool
	Code      int
	Err       error
}

func (e *SendError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s send failure (%d): %v", kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s send failure: %v", kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a permanent SendError.
func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent
}

// LogTransport only logs messages. Used for local runs without a provider.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(logger *slog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	id := newMessageID(msg.FromEmail)
	t.logger.Info("email sent",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"size", len(msg.HTML),
	)
	return id, nil
}
