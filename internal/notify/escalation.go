package notify

import (
	"context"
	"fmt"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// EscalationService emails the operations inbox when a conversation stops
// rerouting and gets pinned. It implements conversation.Escalator.
type EscalationService struct {
	sender EmailSender
	to     string
	logger *logging.Logger
}

// NewEscalationService creates the escalation notifier.
func NewEscalationService(sender EmailSender, to string, logger *logging.Logger) *EscalationService {
	if sender == nil {
		panic("notify: email sender cannot be nil")
	}
	if to == "" {
		panic("notify: escalation address cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationService{sender: sender, to: to, logger: logger}
}

var _ conversation.Escalator = (*EscalationService)(nil)

func (s *EscalationService) Escalate(ctx context.Context, key, reason string, stage conversation.Stage, score int) error {
	msg := EmailMessage{
		To:      s.to,
		Subject: fmt.Sprintf("Conversation escalated: %s", key),
		Body: fmt.Sprintf(
			"A conversation needs a human.\n\nConversation: %s\nReason: %s\nPinned stage: %s\nScore: %d/10\n",
			key, reason, stage, score,
		),
	}
	if err := s.sender.SendEmail(ctx, msg); err != nil {
		return fmt.Errorf("notify: escalation email failed: %w", err)
	}
	s.logger.Info("escalation email sent", "conversation_key", key, "stage", stage, "score", score)
	return nil
}
