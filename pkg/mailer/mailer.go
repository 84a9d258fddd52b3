// Package mailer sends transactional email through SendGrid.
// Delivery is fire-and-forget: a nil error means SendGrid accepted the
// message, not that it reached the inbox.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/logger"
)

// ErrNotConfigured is returned by Send when no API key is configured.
var ErrNotConfigured = errors.New("mailer: sendgrid api key not configured")

// Email is one outbound message.
type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text; an HTML part is derived from it
	// Headers are copied onto the message (e.g. X-Negotiation-ID for reply threading).
	Headers map[string]string
}

// Receipt identifies an accepted message.
type Receipt struct {
	MessageID  string
	StatusCode int
}

// SendGridMailer delivers Email through the SendGrid v3 API.
type SendGridMailer struct {
	client   *sendgrid.Client
	fromAddr string
	fromName string
	log      logger.Logger
}

// NewSendGridMailer builds a mailer from config. An empty API key yields a
// mailer whose Send always fails with ErrNotConfigured.
func NewSendGridMailer(cfg *config.Config, log logger.Logger) *SendGridMailer {
	m := &SendGridMailer{
		fromAddr: cfg.MailFromAddress,
		fromName: cfg.MailFromName,
		log:      log,
	}
	if cfg.SendGridAPIKey != "" {
		m.client = sendgrid.NewSendClient(cfg.SendGridAPIKey)
	}
	return m
}

// Send submits e to SendGrid. Non-2xx responses are returned as errors so the
// caller's queue can retry them.
func (m *SendGridMailer) Send(ctx context.Context, e Email) (Receipt, error) {
	if m.client == nil {
		return Receipt{}, ErrNotConfigured
	}

	from := mail.NewEmail(m.fromName, m.fromAddr)
	to := mail.NewEmail(e.ToName, e.To)
	msg := mail.NewSingleEmail(from, e.Subject, to, e.Body, toHTML(e.Body))
	for k, v := range e.Headers {
		msg.SetHeader(k, v)
	}

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("mailer: send to %s: %w", e.To, err)
	}
	if resp.StatusCode >= 300 {
		return Receipt{StatusCode: resp.StatusCode}, fmt.Errorf("mailer: sendgrid rejected message to %s: status %d: %s",
			e.To, resp.StatusCode, resp.Body)
	}

	receipt := Receipt{StatusCode: resp.StatusCode}
	if ids := resp.Headers["X-Message-Id"]; len(ids) > 0 {
		receipt.MessageID = ids[0]
	}
	m.log.InfoContext(ctx, "mailer: message accepted",
		"to", e.To, "subject", e.Subject, "message_id", receipt.MessageID)
	return receipt, nil
}

// Ping reports whether the mailer can send at all.
func (m *SendGridMailer) Ping(_ context.Context) error {
	if m.client == nil {
		return ErrNotConfigured
	}
	return nil
}

// toHTML renders plain text as escaped paragraphs.
func toHTML(body string) string {
	var b strings.Builder
	for _, para := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if para = strings.TrimSpace(para); para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
