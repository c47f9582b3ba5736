// Package notify delivers operational notifications, currently escalation
// emails when a conversation trips the routing ceiling.
package notify

import "context"

// EmailMessage is a provider-neutral email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers one email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}
