package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// snapshotItem is the DynamoDB row shape. The version attribute drives the
// optimistic-concurrency condition expression.
type snapshotItem struct {
	ConversationKey string    `dynamodbav:"conversationKey"`
	Version         int64     `dynamodbav:"version"`
	Snapshot        *Snapshot `dynamodbav:"snapshot"`
	UpdatedAt       string    `dynamodbav:"updatedAt"`
}

// DynamoSnapshotStore persists conversation snapshots to DynamoDB.
type DynamoSnapshotStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
	tracer    trace.Tracer
}

var _ SnapshotStore = (*DynamoSnapshotStore)(nil)

// NewDynamoSnapshotStore builds a store backed by the provided DynamoDB client.
func NewDynamoSnapshotStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoSnapshotStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoSnapshotStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
		tracer:    otel.Tracer("leadagent.internal.conversation.snapshots"),
	}
}

// Load fetches the snapshot with a consistent read and returns the version it
// was read at.
func (s *DynamoSnapshotStore) Load(ctx context.Context, key string) (*Snapshot, int64, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_snapshot")
	defer span.End()

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"conversationKey": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("conversation: failed to fetch snapshot: %w", err)
	}
	if out.Item == nil {
		return nil, 0, ErrSnapshotNotFound
	}

	var item snapshotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("conversation: failed to decode snapshot: %w", err)
	}
	if item.Snapshot == nil {
		return nil, 0, fmt.Errorf("conversation: snapshot item %s has no payload", key)
	}
	if err := migrateSnapshot(item.Snapshot); err != nil {
		return nil, 0, err
	}
	return item.Snapshot, item.Version, nil
}

// Store commits the snapshot iff the stored version still equals
// expectedVersion. A conditional-check failure maps to ErrVersionConflict.
func (s *DynamoSnapshotStore) Store(ctx context.Context, key string, snapshot *Snapshot, expectedVersion int64) error {
	if snapshot == nil {
		return errors.New("conversation: snapshot cannot be nil")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.store_snapshot")
	defer span.End()

	item, err := attributevalue.MarshalMap(snapshotItem{
		ConversationKey: key,
		Version:         expectedVersion + 1,
		Snapshot:        snapshot,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal snapshot: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(conversationKey)")
	} else {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrVersionConflict
		}
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist snapshot: %w", err)
	}
	return nil
}
