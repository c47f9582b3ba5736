package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

const (
	receiveBatchSize   = 5
	receiveWaitSeconds = 10
	receiveBackoffMax  = 30 * time.Second
)

// ReplyMessenger delivers a committed reply back to the contact through the
// messaging provider.
type ReplyMessenger interface {
	SendMessage(ctx context.Context, contactID, text string) error
}

// Worker drains the turn queue and runs each turn through the processor.
// Delivery is at-least-once: messages are deleted only after the turn commits,
// and the merge layer makes redelivered turns idempotent.
type Worker struct {
	queue     queueClient
	processor *Processor
	messenger ReplyMessenger
	logger    *logging.Logger

	concurrency int
	turnTimeout time.Duration
}

// WorkerOption configures the worker.
type WorkerOption func(*Worker)

// WithConcurrency sets how many goroutines poll the queue.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithTurnTimeout bounds how long a single turn may run.
func WithTurnTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.turnTimeout = d
		}
	}
}

// NewWorker wires a queue consumer around the turn processor.
func NewWorker(queue queueClient, processor *Processor, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	w := &Worker{
		queue:       queue,
		processor:   processor,
		messenger:   messenger,
		logger:      logger,
		concurrency: 1,
		turnTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is cancelled. It blocks.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.poll(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) poll(ctx context.Context, id int) {
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		messages, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue receive failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, receiveBackoffMax)
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handle(ctx, msg)
		}
	}
}

// handle runs one queued turn. The message is deleted on success and on
// terminal failures; recoverable failures leave it for redelivery.
func (w *Worker) handle(ctx context.Context, msg queueMessage) {
	payload, err := decodeTurnPayload(msg.Body)
	if err != nil {
		// Malformed payloads never become processable; drop them.
		w.logger.Error("dropping undecodable turn payload", "message_id", msg.ID, "error", err)
		w.delete(ctx, msg)
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, w.turnTimeout)
	defer cancel()

	result, err := w.processor.ProcessTurn(turnCtx, payload.Turn)
	if err != nil {
		var persistErr *PersistenceError
		if errors.As(err, &persistErr) {
			// The reply was never durably recorded, so it must not be
			// delivered. Redelivery will regenerate the whole turn.
			w.logger.Error("turn persistence failed, leaving for redelivery",
				"job_id", payload.ID, "conversation_key", persistErr.ConversationKey, "error", err)
			return
		}
		if errors.Is(err, ErrConcurrentUpdate) {
			w.logger.Warn("turn lost the concurrency race, leaving for redelivery",
				"job_id", payload.ID, "error", err)
			return
		}
		w.logger.Error("turn processing failed, leaving for redelivery",
			"job_id", payload.ID, "error", err)
		return
	}

	w.deliver(ctx, payload.ID, result)
	w.delete(ctx, msg)
}

// deliver sends the committed reply. Delivery failures do not requeue: the
// turn committed, and replaying it would advance state without redelivering
// this exact reply anyway.
func (w *Worker) deliver(ctx context.Context, jobID string, result *TurnResult) {
	if w.messenger == nil || result.ReplyText == "" {
		return
	}
	if err := w.messenger.SendMessage(ctx, result.ContactID, result.ReplyText); err != nil {
		w.logger.Error("reply delivery failed",
			"job_id", jobID, "conversation_key", result.ConversationKey, "error", err)
		return
	}
	w.logger.Info("reply delivered",
		"job_id", jobID,
		"conversation_key", result.ConversationKey,
		"stage", result.Stage,
		"score", result.Score,
		"escalated", result.Escalated)
}

func (w *Worker) delete(ctx context.Context, msg queueMessage) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Warn("queue delete failed", "message_id", msg.ID, "error", err)
	}
}
