package conversation

import (
	"fmt"
	"time"
)

// Snapshot schema versions. Version 1 predates bounded rerouting and stored no
// routing attempts; version 2 is current.
const (
	SchemaVersionV1       = 1
	CurrentSchemaVersion  = 2
	oldestSupportedSchema = SchemaVersionV1
)

// Stage identifies which responder owns the conversation.
type Stage string

const (
	StageCold Stage = "cold"
	StageWarm Stage = "warm"
	StageHot  Stage = "hot"
)

// RoutingState captures the router's view of a conversation.
type RoutingState struct {
	Current          Stage  `json:"current" dynamodbav:"current"`
	Next             Stage  `json:"next" dynamodbav:"next"`
	Attempts         int    `json:"attempts" dynamodbav:"attempts"`
	NeedsReroute     bool   `json:"needsReroute" dynamodbav:"needsReroute"`
	ShouldEnd        bool   `json:"shouldEnd" dynamodbav:"shouldEnd"`
	EscalationReason string `json:"escalationReason,omitempty" dynamodbav:"escalationReason,omitempty"`
}

// Snapshot is the full persisted state of one conversation. The turn processor
// exclusively owns writes; responders only propose messages and facts.
type Snapshot struct {
	ConversationKey string       `json:"conversationKey" dynamodbav:"conversationKey"`
	ContactID       string       `json:"contactId,omitempty" dynamodbav:"contactId,omitempty"`
	Messages        []Message    `json:"messages" dynamodbav:"messages"`
	Facts           Facts        `json:"facts" dynamodbav:"facts"`
	Score           int          `json:"score" dynamodbav:"score"`
	Routing         RoutingState `json:"routing" dynamodbav:"routing"`
	SchemaVersion   int          `json:"schemaVersion" dynamodbav:"schemaVersion"`
	LastUpdated     time.Time    `json:"lastUpdated" dynamodbav:"lastUpdated"`
}

// NewSnapshot creates an empty snapshot for a freshly resolved key.
func NewSnapshot(key string) *Snapshot {
	return &Snapshot{
		ConversationKey: key,
		Facts:           Facts{},
		SchemaVersion:   CurrentSchemaVersion,
	}
}

// migrateSnapshot upgrades a loaded snapshot to the current schema, or rejects
// versions this build does not understand rather than misreading their fields.
func migrateSnapshot(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("conversation: nil snapshot: %w", ErrUnsupportedSchema)
	}
	switch {
	case s.SchemaVersion == CurrentSchemaVersion:
		return nil
	case s.SchemaVersion == SchemaVersionV1:
		// v1 had no routing attempt tracking; treat the stored stage as
		// settled so the ceiling starts counting from this deployment.
		s.Routing.Attempts = 0
		s.Routing.NeedsReroute = false
		if s.Routing.Next == "" {
			s.Routing.Next = s.Routing.Current
		}
		s.SchemaVersion = CurrentSchemaVersion
		return nil
	default:
		return fmt.Errorf("conversation: snapshot schema %d not in [%d,%d]: %w",
			s.SchemaVersion, oldestSupportedSchema, CurrentSchemaVersion, ErrUnsupportedSchema)
	}
}
