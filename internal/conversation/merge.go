package conversation

import (
	"fmt"
	"sort"
	"time"
)

// dedupBucket tolerates at-least-once delivery for messages without an
// external id: the same (role, text) inside one bucket is one message, while
// a legitimately repeated short message sent later survives.
const dedupBucket = time.Minute

// MergeHistory unions the stored transcript, the provider-fetched backfill,
// and the newly arrived message into one deduplicated, causally ordered
// sequence. fetched may be nil when the provider was unavailable; incoming may
// be nil on replays. The inputs are not mutated and the merge is idempotent:
// identical inputs always produce the identical sequence.
func MergeHistory(stored, fetched []Message, incoming *Message) []Message {
	merged := make([]Message, 0, len(stored)+len(fetched)+1)
	seen := make(map[string]struct{}, len(stored)+len(fetched)+1)

	appendUnique := func(msg Message) {
		key := dedupKey(msg)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, msg)
	}

	// Stored messages first: they carry the origin and ids we committed.
	for _, msg := range stored {
		appendUnique(msg)
	}
	for _, msg := range fetched {
		if msg.Origin == "" {
			msg.Origin = OriginHistorical
		}
		appendUnique(msg)
	}
	if incoming != nil {
		msg := *incoming
		if msg.Origin == "" {
			msg.Origin = OriginLive
		}
		appendUnique(msg)
	}

	// Stable sort keeps arrival order for full ties.
	sort.SliceStable(merged, func(i, j int) bool {
		return messageLess(merged[i], merged[j])
	})
	return merged
}

// dedupKey identifies a message for merge purposes: the external id when the
// provider assigned one, otherwise role, text, and timestamp bucket.
func dedupKey(msg Message) string {
	if msg.ExternalID != "" {
		return "id|" + msg.ExternalID
	}
	return fmt.Sprintf("%s|%s|%d", msg.Role, msg.Text, msg.Timestamp.UTC().Truncate(dedupBucket).Unix())
}
