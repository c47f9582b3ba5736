package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgAt(role Role, text string, ts time.Time, opts ...func(*Message)) Message {
	m := Message{Role: role, Text: text, Timestamp: ts}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func withExternalID(id string) func(*Message) {
	return func(m *Message) { m.ExternalID = id }
}

func withOrigin(origin Origin) func(*Message) {
	return func(m *Message) { m.Origin = origin }
}

func TestMergeHistoryDeduplicatesByExternalID(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := []Message{
		msgAt(RoleUser, "hi there", base, withExternalID("m-1"), withOrigin(OriginLive)),
	}
	fetched := []Message{
		// Same provider message, different local timestamp representation.
		msgAt(RoleUser, "hi there", base.Add(2*time.Second), withExternalID("m-1")),
		msgAt(RoleAssistant, "hello!", base.Add(5*time.Second), withExternalID("m-2")),
	}

	merged := MergeHistory(stored, fetched, nil)

	require.Len(t, merged, 2)
	// The stored copy wins the dedup, keeping its committed origin.
	assert.Equal(t, OriginLive, merged[0].Origin)
	assert.Equal(t, "m-2", merged[1].ExternalID)
}

func TestMergeHistoryDeduplicatesWithoutExternalID(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := []Message{
		msgAt(RoleUser, "ok", base),
	}
	fetched := []Message{
		// Same role and text inside the same minute bucket: duplicate.
		msgAt(RoleUser, "ok", base.Add(10*time.Second)),
		// Same text well outside the bucket: a real repeated message.
		msgAt(RoleUser, "ok", base.Add(5*time.Minute)),
	}

	merged := MergeHistory(stored, fetched, nil)

	require.Len(t, merged, 2)
	assert.Equal(t, base, merged[0].Timestamp)
	assert.Equal(t, base.Add(5*time.Minute), merged[1].Timestamp)
}

func TestMergeHistoryIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fetched := []Message{
		msgAt(RoleUser, "hi", base, withExternalID("m-1")),
		msgAt(RoleAssistant, "hello", base.Add(time.Minute), withExternalID("m-2")),
	}
	incoming := msgAt(RoleUser, "I need a website", base.Add(2*time.Minute), withExternalID("m-3"))

	first := MergeHistory(nil, fetched, &incoming)
	second := MergeHistory(first, fetched, &incoming)

	assert.Equal(t, first, second)
}

func TestMergeHistoryRedeliveredIncomingIsNoOp(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	incoming := msgAt(RoleUser, "hi", base, withExternalID("m-1"))

	stored := MergeHistory(nil, nil, &incoming)
	require.Len(t, stored, 1)

	// The provider redelivers the same webhook.
	replayed := MergeHistory(stored, nil, &incoming)
	assert.Equal(t, stored, replayed)
}

func TestMergeHistoryOrdersByTimestampHistoricalFirstOnTies(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	live := msgAt(RoleUser, "live message", ts, withExternalID("live-1"), withOrigin(OriginLive))
	historical := msgAt(RoleAssistant, "historical message", ts, withExternalID("hist-1"))

	merged := MergeHistory([]Message{live}, []Message{historical}, nil)

	require.Len(t, merged, 2)
	assert.Equal(t, OriginHistorical, merged[0].Origin)
	assert.Equal(t, OriginLive, merged[1].Origin)
}

func TestMergeHistoryNilFetchDegradesGracefully(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stored := []Message{msgAt(RoleUser, "earlier", base, withExternalID("m-1"))}
	incoming := msgAt(RoleUser, "now", base.Add(time.Minute), withExternalID("m-2"))

	merged := MergeHistory(stored, nil, &incoming)

	require.Len(t, merged, 2)
	assert.Equal(t, "m-1", merged[0].ExternalID)
	assert.Equal(t, "m-2", merged[1].ExternalID)
	assert.Equal(t, OriginLive, merged[1].Origin)
}

func TestMergeHistoryDefaultsFetchedOrigin(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fetched := []Message{msgAt(RoleUser, "from provider", base, withExternalID("m-9"))}

	merged := MergeHistory(nil, fetched, nil)

	require.Len(t, merged, 1)
	assert.Equal(t, OriginHistorical, merged[0].Origin)
}

func TestMergeHistoryDoesNotMutateInputs(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fetched := []Message{msgAt(RoleUser, "from provider", base, withExternalID("m-9"))}

	_ = MergeHistory(nil, fetched, nil)

	assert.Equal(t, Origin(""), fetched[0].Origin)
}
