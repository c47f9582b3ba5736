package conversation

import (
	"context"
	"fmt"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// Publisher enqueues inbound turns for asynchronous processing so webhook
// ingress can acknowledge the provider immediately.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueTurn publishes a turn request and returns the job id.
func (p *Publisher) EnqueueTurn(ctx context.Context, req TurnRequest) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodeTurnPayload(turnPayload{Turn: req})
	if err != nil {
		return "", err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue turn: %w", err)
	}

	p.logger.Debug("turn enqueued", "job_id", payload.ID, "contact_id", req.ContactID)
	return payload.ID, nil
}
