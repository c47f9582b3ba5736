package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

type capturingSender struct {
	messages []EmailMessage
	err      error
}

func (s *capturingSender) SendEmail(_ context.Context, msg EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func TestEscalationServiceSendsEmail(t *testing.T) {
	sender := &capturingSender{}
	svc := NewEscalationService(sender, "ops@acme.com", logging.New("error"))

	err := svc.Escalate(context.Background(), "conv:session:s-1", "routing ceiling reached", conversation.StageWarm, 7)

	require.NoError(t, err)
	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, "ops@acme.com", msg.To)
	assert.Contains(t, msg.Subject, "conv:session:s-1")
	assert.Contains(t, msg.Body, "routing ceiling reached")
	assert.Contains(t, msg.Body, "warm")
	assert.Contains(t, msg.Body, "7/10")
}

func TestEscalationServicePropagatesSendFailure(t *testing.T) {
	sender := &capturingSender{err: assert.AnError}
	svc := NewEscalationService(sender, "ops@acme.com", logging.New("error"))

	err := svc.Escalate(context.Background(), "k", "reason", conversation.StageHot, 9)

	assert.Error(t, err)
}
