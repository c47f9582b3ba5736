package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// GoHighLevel provider
	GHLBaseURL        string
	GHLAPIKey         string
	GHLLocationID     string
	GHLWebhookSecret  string
	GHLRequestTimeout time.Duration
	GHLRetryAttempts  int

	// Turn processing
	UseMemoryQueue    bool
	WorkerCount       int
	TurnQueueURL      string
	SnapshotTable     string
	StoreRetryLimit   int
	RoutingCeiling    int
	TurnTimeout       time.Duration
	SnapshotCacheTTL  time.Duration
	UseMemorySnapshot bool

	// Postgres (bootstrap snapshot store + archive mirror)
	DatabaseURL string

	// Redis (identity aliases + snapshot cache)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Archive
	ArchiveBucket string

	// Responders
	BedrockModelID string
	GeminiAPIKey   string
	GeminiModelID  string

	// Escalation notifications
	EmailProvider      string
	EscalationEmail    string
	SESFromEmail       string
	SESFromName        string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	AdminJWTSecret     string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		GHLBaseURL:        getEnv("GHL_BASE_URL", "https://services.leadconnectorhq.com"),
		GHLAPIKey:         getEnv("GHL_API_KEY", ""),
		GHLLocationID:     getEnv("GHL_LOCATION_ID", ""),
		GHLWebhookSecret:  getEnv("GHL_WEBHOOK_SECRET", ""),
		GHLRequestTimeout: getEnvAsDuration("GHL_REQUEST_TIMEOUT", 10*time.Second),
		GHLRetryAttempts:  getEnvAsInt("GHL_RETRY_ATTEMPTS", 3),

		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 2),
		TurnQueueURL:      getEnv("TURN_QUEUE_URL", ""),
		SnapshotTable:     getEnv("SNAPSHOT_TABLE", "conversation_snapshots"),
		StoreRetryLimit:   getEnvAsInt("STORE_RETRY_LIMIT", 3),
		RoutingCeiling:    getEnvAsInt("ROUTING_CEILING", 3),
		TurnTimeout:       getEnvAsDuration("TURN_TIMEOUT", 30*time.Second),
		SnapshotCacheTTL:  getEnvAsDuration("SNAPSHOT_CACHE_TTL", 24*time.Hour),
		UseMemorySnapshot: getEnvAsBool("USE_MEMORY_SNAPSHOT_STORE", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		EscalationEmail:   getEnv("ESCALATION_EMAIL", ""),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Lead Agent"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Lead Agent"),

		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
