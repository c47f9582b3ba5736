package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// TurnEnqueuer accepts an inbound turn for asynchronous processing.
type TurnEnqueuer interface {
	EnqueueTurn(ctx context.Context, req conversation.TurnRequest) (string, error)
}

// WebhookHandler ingests GoHighLevel inbound-message webhooks. It validates,
// enqueues, and acknowledges; all real work happens off the request path.
type WebhookHandler struct {
	secret   string
	enqueuer TurnEnqueuer
	logger   *logging.Logger
}

func NewWebhookHandler(secret string, enqueuer TurnEnqueuer, logger *logging.Logger) *WebhookHandler {
	if enqueuer == nil {
		panic("handlers: enqueuer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{secret: strings.TrimSpace(secret), enqueuer: enqueuer, logger: logger}
}

type webhookPayload struct {
	ContactID      string `json:"contactId"`
	SessionID      string `json:"sessionId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Body           string `json:"body"`
	Timestamp      string `json:"timestamp"`
}

// Handle processes one webhook delivery.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		h.logger.Error("webhook secret not configured")
		http.Error(w, "webhook secret not configured", http.StatusInternalServerError)
		return
	}

	provided := r.Header.Get("X-Webhook-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.secret)) != 1 {
		h.logger.Warn("webhook with invalid secret", "remote_ip", r.RemoteAddr)
		http.Error(w, "invalid webhook secret", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Body) == "" {
		http.Error(w, "message body is required", http.StatusBadRequest)
		return
	}
	if payload.ContactID == "" && payload.SessionID == "" && payload.ConversationID == "" {
		http.Error(w, "at least one identifier is required", http.StatusBadRequest)
		return
	}

	var ts time.Time
	if payload.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			ts = parsed
		}
	}

	jobID, err := h.enqueuer.EnqueueTurn(r.Context(), conversation.TurnRequest{
		ContactID:              payload.ContactID,
		SessionID:              payload.SessionID,
		ExternalConversationID: payload.ConversationID,
		MessageText:            payload.Body,
		MessageExternalID:      payload.MessageID,
		Timestamp:              ts,
	})
	if err != nil {
		h.logger.Error("failed to enqueue turn", "contact_id", payload.ContactID, "error", err)
		http.Error(w, "failed to accept message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"jobId": jobID})
}
