package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// turnPayload is the wire shape of a queued turn. Redeliveries are safe: the
// merge layer deduplicates by message external id, so at-least-once queue
// semantics cannot duplicate transcript entries.
type turnPayload struct {
	ID   string      `json:"id"`
	Turn TurnRequest `json:"turn"`
}

func encodeTurnPayload(payload turnPayload) (turnPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return turnPayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}

func decodeTurnPayload(body string) (turnPayload, error) {
	var payload turnPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return turnPayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	return payload, nil
}
