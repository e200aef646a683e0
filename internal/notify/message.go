// Package notify composes the per-cycle report message and hands it to a
// transport (Mailgun in production, memory or log elsewhere).
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Attachment is one file carried by a Message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a composed notification.
type Message struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Validate checks the envelope fields every transport needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("message sender is required")
	}
	if len(m.To) == 0 {
		return fmt.Errorf("message needs at least one recipient")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("message subject is required")
	}
	return nil
}

// Transport delivers a Message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// LogTransport writes the message envelope to a logger instead of sending
// it. Useful when no mail provider is configured.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport returns a LogTransport.
func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

// Send logs msg.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
	}
	t.logger.Info("notification",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names),
		zap.String("text", msg.Text))
	return nil
}
