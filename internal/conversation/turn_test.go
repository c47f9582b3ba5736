package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

type stubResponder struct {
	reply Reply
	err   error
	calls int
}

func (s *stubResponder) Respond(_ context.Context, _ []Message, _ Facts, _ int) (*Reply, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	reply := s.reply
	return &reply, nil
}

type stubFetcher struct {
	messages []Message
	err      error
}

func (s *stubFetcher) FetchHistory(context.Context, string) ([]Message, error) {
	return s.messages, s.err
}

type stubEscalator struct {
	calls  int
	key    string
	reason string
}

func (s *stubEscalator) Escalate(_ context.Context, key, reason string, _ Stage, _ int) error {
	s.calls++
	s.key = key
	s.reason = reason
	return nil
}

// flakyStore injects store errors for the first n Store calls.
type flakyStore struct {
	SnapshotStore
	failures int
	err      error
	stores   int
}

func (s *flakyStore) Store(ctx context.Context, key string, snap *Snapshot, expectedVersion int64) error {
	s.stores++
	if s.stores <= s.failures {
		return s.err
	}
	return s.SnapshotStore.Store(ctx, key, snap, expectedVersion)
}

func registryWith(r Responder) *Registry {
	reg := NewRegistry()
	reg.Register(StageCold, r)
	reg.Register(StageWarm, r)
	reg.Register(StageHot, r)
	return reg
}

func newTestProcessor(t *testing.T, store SnapshotStore, r Responder, opts ...ProcessorOption) *Processor {
	t.Helper()
	resolver := NewResolver(NewMemoryAliasStore(), logging.New("error"))
	return NewProcessor(resolver, store, registryWith(r), logging.New("error"), opts...)
}

func turnReq(text string) TurnRequest {
	return TurnRequest{
		ContactID:         "c-1",
		SessionID:         "s-1",
		MessageText:       text,
		MessageExternalID: "m-" + text,
		Timestamp:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestProcessTurnNewConversation(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{Text: "Hi! What's your name?"}}
	p := newTestProcessor(t, store, responder)

	result, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	require.NoError(t, err)
	assert.Equal(t, "conv:session:s-1", result.ConversationKey)
	assert.Equal(t, StageCold, result.Stage)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, "Hi! What's your name?", result.ReplyText)
	assert.False(t, result.Escalated)
	assert.False(t, result.ShouldEnd)

	snap, version, err := store.Load(context.Background(), result.ConversationKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, RoleAssistant, snap.Messages[1].Role)
	assert.Equal(t, CurrentSchemaVersion, snap.SchemaVersion)
}

func TestProcessTurnAccumulatesAcrossTurns(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{Text: "got it"}}
	p := newTestProcessor(t, store, responder)
	ctx := context.Background()

	_, err := p.ProcessTurn(ctx, turnReq("Hi, I'm Ana and I run a salon"))
	require.NoError(t, err)

	result, err := p.ProcessTurn(ctx, turnReq("I need more clients, budget is $2k a month, pricing?"))
	require.NoError(t, err)

	// 1 baseline +2 intent +2 category +2 budget +1 business = 8
	assert.Equal(t, 8, result.Score)
	assert.Equal(t, StageHot, result.Stage)

	snap, version, err := store.Load(ctx, result.ConversationKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, "Ana", snap.Facts[FactName])
	assert.Equal(t, "salon", snap.Facts[FactBusinessType])
	assert.Equal(t, 1, snap.Routing.Attempts, "cold to hot is one reroute")
}

func TestProcessTurnRedeliveryDoesNotDuplicateMessage(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{Text: "reply"}}
	p := newTestProcessor(t, store, responder)
	ctx := context.Background()

	req := turnReq("hello")
	_, err := p.ProcessTurn(ctx, req)
	require.NoError(t, err)

	// The provider delivers the same message again.
	result, err := p.ProcessTurn(ctx, req)
	require.NoError(t, err)

	snap, _, err := store.Load(ctx, result.ConversationKey)
	require.NoError(t, err)
	userCount := 0
	for _, msg := range snap.Messages {
		if msg.Role == RoleUser {
			userCount++
		}
	}
	assert.Equal(t, 1, userCount, "merge dedup must absorb the redelivered message")
}

func TestProcessTurnResponderFactUpdatesRescore(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{
		Text:        "noted",
		FactUpdates: Facts{FactNeedCategory: "seo", FactBudget: "$1k"},
	}}
	p := newTestProcessor(t, store, responder)

	result, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	require.NoError(t, err)
	// 1 baseline +2 category +2 budget from the responder's updates.
	assert.Equal(t, 5, result.Score)

	snap, _, err := store.Load(context.Background(), result.ConversationKey)
	require.NoError(t, err)
	assert.Equal(t, "seo", snap.Facts[FactNeedCategory])
}

func TestProcessTurnRetriesOnVersionConflict(t *testing.T) {
	store := &flakyStore{
		SnapshotStore: NewMemorySnapshotStore(),
		failures:      2,
		err:           ErrVersionConflict,
	}
	responder := &stubResponder{reply: Reply{Text: "reply"}}
	p := newTestProcessor(t, store, responder)

	result, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Equal(t, 3, store.stores)
	assert.Equal(t, 3, responder.calls, "each retry re-runs the full turn")
}

func TestProcessTurnConflictBudgetExhausted(t *testing.T) {
	store := &flakyStore{
		SnapshotStore: NewMemorySnapshotStore(),
		failures:      DefaultStoreRetryLimit + 1,
		err:           ErrVersionConflict,
	}
	responder := &stubResponder{reply: Reply{Text: "reply"}}
	p := newTestProcessor(t, store, responder)

	_, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, DefaultStoreRetryLimit, store.stores)
}

func TestProcessTurnPersistenceErrorCarriesReply(t *testing.T) {
	store := &flakyStore{
		SnapshotStore: NewMemorySnapshotStore(),
		failures:      1,
		err:           errors.New("table on fire"),
	}
	responder := &stubResponder{reply: Reply{Text: "the reply that was never saved"}}
	p := newTestProcessor(t, store, responder)

	_, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "the reply that was never saved", persistErr.ReplyText)
	assert.Equal(t, "conv:session:s-1", persistErr.ConversationKey)
}

func TestProcessTurnResponderErrorCommitsNothing(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{err: errors.New("model down")}
	p := newTestProcessor(t, store, responder)

	_, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	require.Error(t, err)
	var persistErr *PersistenceError
	assert.False(t, errors.As(err, &persistErr))

	_, _, loadErr := store.Load(context.Background(), "conv:session:s-1")
	assert.ErrorIs(t, loadErr, ErrSnapshotNotFound, "nothing may persist when the responder fails")
}

func TestProcessTurnHistoryFetchFailureDegrades(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{Text: "reply"}}
	p := newTestProcessor(t, store, responder,
		WithHistoryFetcher(&stubFetcher{err: errors.New("provider 503")}))

	result, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	require.NoError(t, err, "history fetch failure must not abort the turn")
	snap, _, err := store.Load(context.Background(), result.ConversationKey)
	require.NoError(t, err)
	assert.Len(t, snap.Messages, 2)
}

func TestProcessTurnMergesFetchedHistory(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{Text: "reply"}}
	fetched := []Message{{
		Role:       RoleUser,
		Text:       "I want google ads",
		ExternalID: "prov-1",
		Timestamp:  time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
	}}
	p := newTestProcessor(t, store, responder, WithHistoryFetcher(&stubFetcher{messages: fetched}))

	result, err := p.ProcessTurn(context.Background(), turnReq("hello"))

	require.NoError(t, err)
	snap, _, err := store.Load(context.Background(), result.ConversationKey)
	require.NoError(t, err)
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, OriginHistorical, snap.Messages[0].Origin)
	assert.Equal(t, "advertising", snap.Facts[FactNeedCategory], "backfilled text feeds extraction")
}

func TestProcessTurnEscalatesAtCeiling(t *testing.T) {
	store := NewMemorySnapshotStore()
	ctx := context.Background()

	pinned := NewSnapshot("conv:session:s-1")
	pinned.Routing = RoutingState{Current: StageCold, Next: StageCold, Attempts: DefaultRoutingCeiling}
	require.NoError(t, store.Store(ctx, "conv:session:s-1", pinned, 0))

	responder := &stubResponder{reply: Reply{Text: "reply"}}
	escalator := &stubEscalator{}
	p := newTestProcessor(t, store, responder, WithEscalator(escalator))

	// A message hot enough to demand a band change the router can no longer grant.
	result, err := p.ProcessTurn(ctx, turnReq("I run a gym, need google ads asap, budget $3k, pricing?"))

	require.NoError(t, err)
	assert.True(t, result.Escalated)
	assert.Equal(t, StageCold, result.Stage, "stage stays pinned")
	assert.Equal(t, 1, escalator.calls)
	assert.Equal(t, EscalationRoutingCeiling, escalator.reason)

	// The next over-ceiling turn does not re-notify.
	again, err := p.ProcessTurn(ctx, turnReq("still waiting, this is urgent"))
	require.NoError(t, err)
	assert.False(t, again.Escalated)
	assert.Equal(t, 1, escalator.calls)
}

func TestProcessTurnResolvedReplyEndsConversation(t *testing.T) {
	store := NewMemorySnapshotStore()
	responder := &stubResponder{reply: Reply{Text: "booked, talk soon!", Resolved: true}}
	p := newTestProcessor(t, store, responder)

	result, err := p.ProcessTurn(context.Background(), turnReq("yes let's book the call"))

	require.NoError(t, err)
	assert.True(t, result.ShouldEnd)
}

func TestProcessTurnNoIdentifiers(t *testing.T) {
	p := newTestProcessor(t, NewMemorySnapshotStore(), &stubResponder{reply: Reply{Text: "x"}})

	_, err := p.ProcessTurn(context.Background(), TurnRequest{MessageText: "hi"})

	assert.ErrorIs(t, err, ErrNoIdentity)
}
