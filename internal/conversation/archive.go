package conversation

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver mirrors committed snapshots into relational tables for reporting
// and exports ended conversations to S3. It implements TurnArchiver and is
// strictly best-effort: the processor logs and continues when it fails.
type Archiver struct {
	db     *sql.DB
	s3     s3API
	bucket string
	logger *logging.Logger
}

// NewArchiver creates an archiver. The S3 client and bucket are optional;
// when absent, ended conversations are only mirrored to Postgres.
func NewArchiver(db *sql.DB, s3Client *s3.Client, bucket string, logger *logging.Logger) *Archiver {
	if db == nil {
		panic("conversation: archive db cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	a := &Archiver{
		db:     db,
		bucket: bucket,
		logger: logger,
	}
	if s3Client != nil {
		a.s3 = s3Client
	}
	return a
}

// ArchiveTurn mirrors the committed snapshot. The message mirror is replaced
// wholesale inside one transaction, so redelivered turns and out-of-order
// archive calls converge on the same rows.
func (a *Archiver) ArchiveTurn(ctx context.Context, snapshot *Snapshot, version int64) error {
	if snapshot == nil {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: failed to begin archive tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_key, contact_id, stage, score, routing_attempts, escalation_reason, should_end, schema_version, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (conversation_key) DO UPDATE SET
			contact_id = EXCLUDED.contact_id,
			stage = EXCLUDED.stage,
			score = EXCLUDED.score,
			routing_attempts = EXCLUDED.routing_attempts,
			escalation_reason = EXCLUDED.escalation_reason,
			should_end = EXCLUDED.should_end,
			schema_version = EXCLUDED.schema_version,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE conversations.version < EXCLUDED.version`,
		snapshot.ConversationKey,
		snapshot.ContactID,
		string(snapshot.Routing.Current),
		snapshot.Score,
		snapshot.Routing.Attempts,
		snapshot.Routing.EscalationReason,
		snapshot.Routing.ShouldEnd,
		snapshot.SchemaVersion,
		version,
		snapshot.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("conversation: failed to upsert conversation row: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE conversation_key = $1`,
		snapshot.ConversationKey,
	); err != nil {
		return fmt.Errorf("conversation: failed to clear message mirror: %w", err)
	}

	for i, msg := range snapshot.Messages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (conversation_key, position, role, origin, external_id, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			snapshot.ConversationKey,
			i,
			string(msg.Role),
			string(msg.Origin),
			msg.ExternalID,
			msg.Text,
			msg.Timestamp,
		); err != nil {
			return fmt.Errorf("conversation: failed to insert message mirror: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: failed to commit archive tx: %w", err)
	}

	if snapshot.Routing.ShouldEnd {
		a.exportEnded(ctx, snapshot, version)
	}
	return nil
}

// exportEnded writes a full JSON export of an ended conversation to S3.
func (a *Archiver) exportEnded(ctx context.Context, snapshot *Snapshot, version int64) {
	if a.s3 == nil || a.bucket == "" {
		return
	}

	body, err := json.Marshal(struct {
		Snapshot *Snapshot `json:"snapshot"`
		Version  int64     `json:"version"`
	}{Snapshot: snapshot, Version: version})
	if err != nil {
		a.logger.Warn("conversation export encode failed",
			"conversation_key", snapshot.ConversationKey, "error", err)
		return
	}

	key := fmt.Sprintf("conversations/%s/%s.json",
		snapshot.ConversationKey, snapshot.LastUpdated.UTC().Format(time.RFC3339))

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.logger.Warn("conversation export upload failed",
			"conversation_key", snapshot.ConversationKey, "error", err)
		return
	}

	a.logger.Info("ended conversation exported",
		"conversation_key", snapshot.ConversationKey, "s3_key", key)
}
