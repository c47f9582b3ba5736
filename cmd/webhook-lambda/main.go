package main

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/palinopr/ghl-lead-agent/cmd/mainconfig"
	"github.com/palinopr/ghl-lead-agent/internal/app/bootstrap"
	appconfig "github.com/palinopr/ghl-lead-agent/internal/config"
	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// handler processes one GoHighLevel webhook synchronously. Lambda already
// provides the concurrency and retry model a queue would, so turns run inline
// instead of being re-enqueued.
type handler struct {
	cfg       *appconfig.Config
	processor *conversation.Processor
	messenger conversation.ReplyMessenger
	logger    *logging.Logger
}

type webhookPayload struct {
	ContactID      string `json:"contactId"`
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Body           string `json:"body"`
	Timestamp      string `json:"timestamp"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting ghl-lead-agent webhook lambda", "env", cfg.Env)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}

	rt, err := bootstrap.BuildProcessor(ctx, cfg, awsCfg, logger)
	if err != nil {
		panic(err)
	}

	h := &handler{
		cfg:       cfg,
		processor: rt.Processor,
		logger:    logger,
	}
	if client := bootstrap.BuildGHLClient(cfg, logger); client != nil {
		h.messenger = client
	}

	lambda.Start(h.handle)
}

func (h *handler) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if strings.ToUpper(evt.RequestContext.HTTP.Method) != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, "method not allowed"), nil
	}

	secret := evt.Headers["x-webhook-secret"]
	if h.cfg.GHLWebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.cfg.GHLWebhookSecret)) != 1 {
		h.logger.Warn("webhook with invalid secret")
		return respond(http.StatusUnauthorized, "invalid webhook secret"), nil
	}

	body := evt.Body
	if evt.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return respond(http.StatusBadRequest, "invalid body encoding"), nil
		}
		body = string(decoded)
	}

	var payload webhookPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return respond(http.StatusBadRequest, "invalid request body"), nil
	}
	if strings.TrimSpace(payload.Body) == "" {
		return respond(http.StatusBadRequest, "message body is required"), nil
	}

	var ts time.Time
	if payload.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			ts = parsed
		}
	}

	result, err := h.processor.ProcessTurn(ctx, conversation.TurnRequest{
		ContactID:              payload.ContactID,
		SessionID:              payload.SessionID,
		ExternalConversationID: payload.ConversationID,
		MessageText:            payload.Body,
		MessageExternalID:      payload.MessageID,
		Timestamp:              ts,
	})
	if err != nil {
		h.logger.Error("turn processing failed", "contact_id", payload.ContactID, "error", err)
		// Non-2xx makes the provider redeliver; merge dedup keeps that safe.
		return respond(http.StatusInternalServerError, "turn processing failed"), nil
	}

	if h.messenger != nil && result.ReplyText != "" {
		if err := h.messenger.SendMessage(ctx, result.ContactID, result.ReplyText); err != nil {
			h.logger.Error("reply delivery failed",
				"conversation_key", result.ConversationKey, "error", err)
		}
	}

	out, _ := json.Marshal(map[string]any{
		"conversationKey": result.ConversationKey,
		"stage":           result.Stage,
		"score":           result.Score,
		"escalated":       result.Escalated,
		"shouldEnd":       result.ShouldEnd,
	})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(out),
	}, nil
}

func respond(status int, message string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{StatusCode: status, Body: message}
}
