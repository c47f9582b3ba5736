// Package bootstrap wires the turn-processing services from configuration.
// Every builder degrades gracefully: a missing optional dependency produces a
// warning and a reduced service, never a dead process.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	appconfig "github.com/palinopr/ghl-lead-agent/internal/config"
	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/internal/ghl"
	"github.com/palinopr/ghl-lead-agent/internal/notify"
	"github.com/palinopr/ghl-lead-agent/internal/observability/metrics"
	"github.com/palinopr/ghl-lead-agent/internal/responder"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// Runtime holds the wired services a binary needs, plus closers for the
// resources it owns.
type Runtime struct {
	Processor *conversation.Processor
	Publisher *conversation.Publisher
	Worker    *conversation.Worker
	Store     conversation.SnapshotStore
	Metrics   *metrics.TurnMetrics

	closers []func() error
}

// Close releases pooled resources in reverse acquisition order.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// BuildRedis creates the shared Redis client, or nil when unconfigured.
func BuildRedis(cfg *appconfig.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// BuildSnapshotStore picks the snapshot backend: in-memory for tests and
// local runs, Postgres when DATABASE_URL is set, DynamoDB otherwise. A Redis
// cache wraps the durable backends when Redis is available.
func BuildSnapshotStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, redisClient *redis.Client, rt *Runtime, logger *logging.Logger) (conversation.SnapshotStore, error) {
	if cfg.UseMemorySnapshot {
		logger.Warn("using in-memory snapshot store; state will not survive restarts")
		return conversation.NewMemorySnapshotStore(), nil
	}

	var store conversation.SnapshotStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: failed to create pgx pool: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		store = conversation.NewPostgresSnapshotStore(pool)
		logger.Info("using Postgres snapshot store")
	} else {
		dynamoClient := dynamodb.NewFromConfig(awsCfg)
		store = conversation.NewDynamoSnapshotStore(dynamoClient, cfg.SnapshotTable, logger)
		logger.Info("using DynamoDB snapshot store", "table", cfg.SnapshotTable)
	}

	if redisClient != nil {
		store = conversation.NewCachedSnapshotStore(store, redisClient, cfg.SnapshotCacheTTL, logger)
		logger.Info("snapshot read-through cache enabled", "ttl", cfg.SnapshotCacheTTL.String())
	}
	return store, nil
}

// BuildResolver wires identity resolution. Without Redis the alias store is
// in-memory, which is fine for a single process but loses alias links on
// restart.
func BuildResolver(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *conversation.Resolver {
	var aliases conversation.AliasStore
	if redisClient != nil {
		aliases = conversation.NewRedisAliasStore(redisClient)
	} else {
		logger.Warn("using in-memory alias store; session links will not survive restarts")
		aliases = conversation.NewMemoryAliasStore()
	}
	return conversation.NewResolver(aliases, logger)
}

// BuildResponders assembles one responder per stage. Model responders are
// chained Bedrock first, Gemini second, with the deterministic template as
// the terminal fallback so turn processing never depends on a model provider.
func BuildResponders(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, rt *Runtime, logger *logging.Logger) (*conversation.Registry, error) {
	var bedrockClient *bedrockruntime.Client
	if cfg.BedrockModelID != "" {
		bedrockClient = bedrockruntime.NewFromConfig(awsCfg)
	}

	var geminiClient *genai.Client
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: failed to create gemini client: %w", err)
		}
		rt.closers = append(rt.closers, client.Close)
		geminiClient = client
	}

	if bedrockClient == nil && geminiClient == nil {
		logger.Warn("no model provider configured; using template responders only")
	}

	registry := conversation.NewRegistry()
	for _, stage := range []conversation.Stage{conversation.StageCold, conversation.StageWarm, conversation.StageHot} {
		chain := make([]conversation.Responder, 0, 3)
		if bedrockClient != nil {
			chain = append(chain, responder.NewBedrock(bedrockClient, cfg.BedrockModelID, stage, logger))
		}
		if geminiClient != nil {
			chain = append(chain, responder.NewGemini(geminiClient, cfg.GeminiModelID, stage, logger))
		}
		chain = append(chain, responder.NewTemplate(stage))
		registry.Register(stage, responder.NewFallback(logger, chain...))
	}
	return registry, nil
}

// BuildQueue picks the turn queue backend.
func BuildQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*conversation.Publisher, *conversation.MemoryQueue, *conversation.SQSQueue) {
	if cfg.UseMemoryQueue || cfg.TurnQueueURL == "" {
		logger.Warn("using in-memory turn queue; run the worker in the same process")
		queue := conversation.NewMemoryQueue(256)
		return conversation.NewPublisher(queue, logger), queue, nil
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnQueueURL)
	return conversation.NewPublisher(queue, logger), nil, queue
}

// BuildEscalator wires the escalation email channel, or nil when no address
// is configured.
func BuildEscalator(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) conversation.Escalator {
	if cfg.EscalationEmail == "" {
		logger.Warn("no escalation email configured; ceiling escalations will only be logged")
		return nil
	}

	var sender notify.EmailSender
	switch {
	case cfg.EmailProvider == "sendgrid" && cfg.SendGridAPIKey != "":
		sender = notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
		logger.Info("escalation emails via SendGrid")
	case cfg.EmailProvider == "ses" && cfg.SESFromEmail != "":
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.SESFromEmail)
		logger.Info("escalation emails via SES")
	case cfg.SESFromEmail != "":
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), cfg.SESFromEmail)
		logger.Info("escalation emails via SES")
	case cfg.SendGridAPIKey != "":
		sender = notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
		logger.Info("escalation emails via SendGrid")
	default:
		logger.Warn("no email sender configured; ceiling escalations will only be logged")
		return nil
	}
	return notify.NewEscalationService(sender, cfg.EscalationEmail, logger)
}

// BuildArchiver wires the Postgres mirror and S3 export, or nil when no
// DATABASE_URL is configured.
func BuildArchiver(cfg *appconfig.Config, awsCfg aws.Config, rt *Runtime, logger *logging.Logger) (conversation.TurnArchiver, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no archive database configured; committed turns will not be mirrored")
		return nil, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: failed to open archive db: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	var s3Client *s3.Client
	if cfg.ArchiveBucket != "" {
		s3Client = s3.NewFromConfig(awsCfg)
	}
	return conversation.NewArchiver(db, s3Client, cfg.ArchiveBucket, logger), nil
}

// BuildGHLClient creates the provider client, or nil when no API key is set.
func BuildGHLClient(cfg *appconfig.Config, logger *logging.Logger) *ghl.Client {
	if cfg.GHLAPIKey == "" {
		logger.Warn("no GHL API key configured; history backfill and reply delivery disabled")
		return nil
	}
	return ghl.NewClient(cfg.GHLBaseURL, cfg.GHLAPIKey, cfg.GHLLocationID, logger,
		ghl.WithRetries(cfg.GHLRetryAttempts))
}

// BuildProcessor assembles the full turn processor.
func BuildProcessor(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*Runtime, error) {
	rt := &Runtime{Metrics: metrics.NewTurnMetrics(nil)}

	redisClient := BuildRedis(cfg)
	if redisClient != nil {
		rt.closers = append(rt.closers, redisClient.Close)
	}

	store, err := BuildSnapshotStore(ctx, cfg, awsCfg, redisClient, rt, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Store = store

	responders, err := BuildResponders(ctx, cfg, awsCfg, rt, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	resolver := BuildResolver(cfg, redisClient, logger)

	opts := []conversation.ProcessorOption{
		conversation.WithTurnMetrics(rt.Metrics),
		conversation.WithStoreRetryLimit(cfg.StoreRetryLimit),
		conversation.WithRoutingCeiling(cfg.RoutingCeiling),
	}

	ghlClient := BuildGHLClient(cfg, logger)
	if ghlClient != nil {
		opts = append(opts, conversation.WithHistoryFetcher(ghlClient))
	}
	if escalator := BuildEscalator(cfg, awsCfg, logger); escalator != nil {
		opts = append(opts, conversation.WithEscalator(escalator))
	}
	archiver, err := BuildArchiver(cfg, awsCfg, rt, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if archiver != nil {
		opts = append(opts, conversation.WithArchiver(archiver))
	}

	rt.Processor = conversation.NewProcessor(resolver, store, responders, logger, opts...)

	publisher, memQueue, sqsQueue := BuildQueue(cfg, awsCfg, logger)
	rt.Publisher = publisher

	var messenger conversation.ReplyMessenger
	if ghlClient != nil {
		messenger = ghlClient
	}
	workerOpts := []conversation.WorkerOption{
		conversation.WithConcurrency(cfg.WorkerCount),
		conversation.WithTurnTimeout(cfg.TurnTimeout),
	}
	if memQueue != nil {
		rt.Worker = conversation.NewWorker(memQueue, rt.Processor, messenger, logger, workerOpts...)
	} else {
		rt.Worker = conversation.NewWorker(sqsQueue, rt.Processor, messenger, logger, workerOpts...)
	}

	return rt, nil
}
