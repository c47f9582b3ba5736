package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers email through SendGrid.
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

// NewSendGridSender creates a SendGrid-backed sender.
func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	if apiKey == "" {
		panic("notify: SendGrid API key cannot be empty")
	}
	if from == "" {
		panic("notify: SendGrid from address cannot be empty")
	}
	if fromName == "" {
		fromName = "Lead Agent"
	}
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

var _ EmailSender = (*SendGridSender)(nil)

func (s *SendGridSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.from),
		msg.Subject,
		mail.NewEmail("", msg.To),
		msg.Body,
		"",
	)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: SendGrid send failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: SendGrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
