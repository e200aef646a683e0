package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunConfig addresses a Mailgun sending domain.
type MailgunConfig struct {
	Domain string
	APIKey string
	// APIBase overrides the API endpoint, e.g. the EU region or a test server.
	APIBase string
}

// MailgunTransport sends messages through the Mailgun HTTP API.
type MailgunTransport struct {
	mg mailgun.Mailgun
}

// NewMailgunTransport validates cfg and builds a transport.
func NewMailgunTransport(cfg MailgunConfig) (*MailgunTransport, error) {
	if strings.TrimSpace(cfg.Domain) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("mailgun domain and api key are required")
	}
	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	return &MailgunTransport{mg: mg}, nil
}

// Send delivers msg.
func (t *MailgunTransport) Send(ctx context.Context, msg Message) error {
	m := t.mg.NewMessage(msg.From, msg.Subject, msg.Text, msg.To...)
	if msg.HTML != "" {
		m.SetHtml(msg.HTML)
	}
	for _, a := range msg.Attachments {
		m.AddBufferAttachment(a.Filename, a.Data)
	}
	_, id, err := t.mg.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	if id == "" {
		return fmt.Errorf("mailgun send: empty message id")
	}
	return nil
}
