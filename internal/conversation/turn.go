package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/palinopr/ghl-lead-agent/internal/observability/metrics"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// DefaultStoreRetryLimit bounds how many times a turn reloads and re-merges
// after a version conflict before failing with ErrConcurrentUpdate.
const DefaultStoreRetryLimit = 3

// TurnRequest is one inbound message delivery from the ingress layer.
type TurnRequest struct {
	ContactID              string    `json:"contactId,omitempty"`
	SessionID              string    `json:"sessionId,omitempty"`
	ExternalConversationID string    `json:"externalConversationId,omitempty"`
	MessageText            string    `json:"messageText"`
	MessageExternalID      string    `json:"messageExternalId,omitempty"`
	Timestamp              time.Time `json:"timestamp,omitempty"`
}

// TurnResult reports a committed turn. The reply has been persisted but not
// delivered; delivery belongs to the caller.
type TurnResult struct {
	ConversationKey string
	ContactID       string
	ReplyText       string
	Stage           Stage
	Score           int
	Escalated       bool
	ShouldEnd       bool
}

// PersistenceError signals the snapshot write failed after the responder
// already produced a reply. The caller must not deliver the reply: the next
// delivery would re-derive it from unpersisted state.
type PersistenceError struct {
	ConversationKey string
	ReplyText       string
	Err             error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("conversation: failed to persist turn for %s: %v", e.ConversationKey, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// HistoryFetcher retrieves prior messages from the messaging provider.
// Best-effort: a failure degrades the turn to stored history only.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, contactID string) ([]Message, error)
}

// TurnArchiver mirrors committed turns to long-term storage. Best-effort:
// archive failures never fail a committed turn.
type TurnArchiver interface {
	ArchiveTurn(ctx context.Context, snapshot *Snapshot, version int64) error
}

// Escalator is notified when a conversation trips the routing ceiling.
type Escalator interface {
	Escalate(ctx context.Context, key, reason string, stage Stage, score int) error
}

// Processor runs the full turn pipeline: resolve identity, load state, merge
// history, extract signal, route, dispatch the responder, and commit the
// updated snapshot with optimistic concurrency. It holds no per-conversation
// state, so any number of replicas can run it.
type Processor struct {
	resolver   *Resolver
	store      SnapshotStore
	responders *Registry

	history  HistoryFetcher
	archiver TurnArchiver
	escalate Escalator
	metrics  *metrics.TurnMetrics

	retryLimit     int
	routingCeiling int

	logger *logging.Logger
	tracer trace.Tracer
}

// ProcessorOption configures the processor.
type ProcessorOption func(*Processor)

// WithHistoryFetcher enables provider history backfill.
func WithHistoryFetcher(fetcher HistoryFetcher) ProcessorOption {
	return func(p *Processor) { p.history = fetcher }
}

// WithArchiver mirrors committed turns to the archiver.
func WithArchiver(archiver TurnArchiver) ProcessorOption {
	return func(p *Processor) { p.archiver = archiver }
}

// WithEscalator notifies on routing-ceiling escalations.
func WithEscalator(escalator Escalator) ProcessorOption {
	return func(p *Processor) { p.escalate = escalator }
}

// WithTurnMetrics records turn outcomes to the supplied collectors.
func WithTurnMetrics(m *metrics.TurnMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithStoreRetryLimit overrides the version-conflict retry budget.
func WithStoreRetryLimit(limit int) ProcessorOption {
	return func(p *Processor) {
		if limit > 0 {
			p.retryLimit = limit
		}
	}
}

// WithRoutingCeiling overrides the reroute ceiling.
func WithRoutingCeiling(ceiling int) ProcessorOption {
	return func(p *Processor) {
		if ceiling > 0 {
			p.routingCeiling = ceiling
		}
	}
}

// NewProcessor wires a turn processor around its collaborators. The store and
// provider clients are injected; their lifecycle belongs to the caller.
func NewProcessor(resolver *Resolver, store SnapshotStore, responders *Registry, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if resolver == nil {
		panic("conversation: resolver cannot be nil")
	}
	if store == nil {
		panic("conversation: snapshot store cannot be nil")
	}
	if responders == nil {
		panic("conversation: responder registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Processor{
		resolver:       resolver,
		store:          store,
		responders:     responders,
		retryLimit:     DefaultStoreRetryLimit,
		routingCeiling: DefaultRoutingCeiling,
		logger:         logger,
		tracer:         otel.Tracer("leadagent.internal.conversation.turns"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessTurn handles one inbound message end to end. Exactly one snapshot
// update commits per successful call; on any error nothing was persisted
// except when the error is a *PersistenceError, which reports a reply that
// was generated but never durably recorded.
func (p *Processor) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "conversation.process_turn")
	defer span.End()

	key, err := p.resolver.Resolve(ctx, RawIdentifiers{
		ContactID:              req.ContactID,
		SessionID:              req.SessionID,
		ExternalConversationID: req.ExternalConversationID,
	})
	if err != nil {
		p.metrics.ObserveTurn("identity_error", "", time.Since(started).Seconds())
		return nil, err
	}

	incoming := p.incomingMessage(req)
	fetched := p.fetchHistory(ctx, req.ContactID)

	var lastErr error
	for attempt := 0; attempt < p.retryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			p.metrics.ObserveConflictRetry()
		}

		result, err := p.attemptTurn(ctx, key, req, incoming, fetched)
		if err == nil {
			p.metrics.ObserveTurn("committed", string(result.Stage), time.Since(started).Seconds())
			return result, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			p.metrics.ObserveTurn("failed", "", time.Since(started).Seconds())
			return nil, err
		}
		lastErr = err
		p.logger.Debug("snapshot version conflict, retrying turn",
			"conversation_key", key, "attempt", attempt+1)
	}

	p.metrics.ObserveTurn("concurrent_update", "", time.Since(started).Seconds())
	return nil, fmt.Errorf("%w for %s: %v", ErrConcurrentUpdate, key, lastErr)
}

// attemptTurn runs one load-merge-route-respond-store cycle. A version
// conflict from the store is returned untranslated so the caller can retry.
func (p *Processor) attemptTurn(ctx context.Context, key string, req TurnRequest, incoming *Message, fetched []Message) (*TurnResult, error) {
	snap, version, err := p.store.Load(ctx, key)
	if errors.Is(err, ErrSnapshotNotFound) {
		snap, version = NewSnapshot(key), 0
	} else if err != nil {
		return nil, fmt.Errorf("conversation: failed to load snapshot: %w", err)
	}
	if snap.ContactID == "" {
		snap.ContactID = req.ContactID
	}

	merged := MergeHistory(snap.Messages, fetched, incoming)
	sourceCount := len(snap.Messages) + len(fetched)
	if incoming != nil {
		sourceCount++
	}
	p.metrics.ObserveMergeDeduplicated(sourceCount - len(merged))

	facts, score := Extract(merged, snap.Facts)
	routing := Route(score, snap.Routing, p.routingCeiling)
	escalated := routing.EscalationReason != "" && snap.Routing.EscalationReason == ""

	responder, err := p.responders.Get(routing.Next)
	if err != nil {
		return nil, err
	}

	reply, err := p.dispatch(ctx, responder, merged, facts, score)
	if err != nil {
		return nil, fmt.Errorf("conversation: responder dispatch failed: %w", err)
	}

	if len(reply.FactUpdates) > 0 {
		facts = MergeFacts(facts, reply.FactUpdates)
		score = Score(facts, merged)
	}
	routing = routing.settle()
	if reply.Resolved {
		routing.ShouldEnd = true
	}

	now := time.Now().UTC()
	updated := &Snapshot{
		ConversationKey: key,
		ContactID:       snap.ContactID,
		Messages: append(merged, Message{
			Role:      RoleAssistant,
			Text:      reply.Text,
			Origin:    OriginLive,
			Timestamp: now,
		}),
		Facts:         facts,
		Score:         score,
		Routing:       routing,
		SchemaVersion: CurrentSchemaVersion,
		LastUpdated:   now,
	}

	if err := p.store.Store(ctx, key, updated, version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		// The reply exists but was never recorded; log enough context for
		// manual reconciliation and make sure nobody delivers it.
		p.logger.Error("snapshot write failed after responder ran",
			"conversation_key", key, "stage", routing.Current, "score", score, "error", err)
		return nil, &PersistenceError{ConversationKey: key, ReplyText: reply.Text, Err: err}
	}

	p.afterCommit(ctx, updated, version+1, escalated)

	return &TurnResult{
		ConversationKey: key,
		ContactID:       snap.ContactID,
		ReplyText:       reply.Text,
		Stage:           routing.Current,
		Score:           score,
		Escalated:       escalated,
		ShouldEnd:       routing.ShouldEnd,
	}, nil
}

func (p *Processor) dispatch(ctx context.Context, responder Responder, history []Message, facts Facts, score int) (*Reply, error) {
	ctx, span := p.tracer.Start(ctx, "conversation.dispatch_responder")
	defer span.End()

	reply, err := responder.Respond(ctx, history, facts.Clone(), score)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if reply == nil {
		return nil, errors.New("conversation: responder returned nil reply")
	}
	return reply, nil
}

func (p *Processor) incomingMessage(req TurnRequest) *Message {
	if req.MessageText == "" {
		return nil
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Message{
		Role:       RoleUser,
		Text:       req.MessageText,
		Origin:     OriginLive,
		ExternalID: req.MessageExternalID,
		Timestamp:  ts,
	}
}

// fetchHistory backfills provider history. Failures degrade to stored-only
// history; they never abort the turn.
func (p *Processor) fetchHistory(ctx context.Context, contactID string) []Message {
	if p.history == nil || contactID == "" {
		return nil
	}
	ctx, span := p.tracer.Start(ctx, "conversation.fetch_history")
	defer span.End()

	fetched, err := p.history.FetchHistory(ctx, contactID)
	if err != nil {
		span.RecordError(err)
		p.metrics.ObserveHistoryFetchFailure()
		p.logger.Warn("provider history fetch failed, proceeding with stored history",
			"contact_id", contactID, "error", err)
		return nil
	}
	return fetched
}

// afterCommit runs the best-effort side channels: archive mirror and
// escalation notification. Neither can fail the already-committed turn.
func (p *Processor) afterCommit(ctx context.Context, snap *Snapshot, version int64, escalated bool) {
	if p.archiver != nil {
		if err := p.archiver.ArchiveTurn(ctx, snap, version); err != nil {
			p.logger.Warn("turn archive failed", "conversation_key", snap.ConversationKey, "error", err)
		}
	}
	if escalated {
		p.metrics.ObserveEscalation()
		if p.escalate != nil {
			if err := p.escalate.Escalate(ctx, snap.ConversationKey, snap.Routing.EscalationReason, snap.Routing.Current, snap.Score); err != nil {
				p.logger.Warn("escalation notification failed", "conversation_key", snap.ConversationKey, "error", err)
			}
		}
	}
}
