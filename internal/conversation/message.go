package conversation

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Origin records where a message entered the system. Live messages arrived on
// this deployment's webhook; historical messages were backfilled from the CRM.
type Origin string

const (
	OriginLive       Origin = "live"
	OriginHistorical Origin = "historical"
)

// Message is a single entry in a conversation transcript.
type Message struct {
	Role       Role      `json:"role" dynamodbav:"role"`
	Text       string    `json:"text" dynamodbav:"text"`
	Origin     Origin    `json:"origin" dynamodbav:"origin"`
	ExternalID string    `json:"externalId,omitempty" dynamodbav:"externalId,omitempty"`
	Timestamp  time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// messageLess orders messages by timestamp; on equal timestamps historical
// messages sort before live ones so backfilled context precedes the turn that
// triggered the backfill. Full ties keep arrival order (callers must use a
// stable sort).
func messageLess(a, b Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Origin == OriginHistorical && b.Origin == OriginLive
}
