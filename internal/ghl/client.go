// Package ghl is a minimal GoHighLevel API client covering the three calls
// the turn pipeline needs: conversation history, outbound messages, and
// contact lookup.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// ErrHistoryUnavailable signals the provider could not serve conversation
// history. Callers treat it as a degradation, not a failure.
var ErrHistoryUnavailable = errors.New("ghl: conversation history unavailable")

const (
	defaultTimeout = 15 * time.Second
	apiVersion     = "2021-07-28"
)

// Client talks to the GoHighLevel REST API.
type Client struct {
	baseURL    string
	apiKey     string
	locationID string
	httpClient *http.Client
	retries    int
	logger     *logging.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetries sets how many times transient failures are retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// NewClient creates a GoHighLevel client.
func NewClient(baseURL, apiKey, locationID string, logger *logging.Logger, opts ...Option) *Client {
	if baseURL == "" {
		panic("ghl: baseURL cannot be empty")
	}
	if apiKey == "" {
		panic("ghl: apiKey cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		locationID: locationID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retries:    2,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type conversationSearchResponse struct {
	Conversations []struct {
		ID string `json:"id"`
	} `json:"conversations"`
}

type messagesResponse struct {
	Messages struct {
		Messages []apiMessage `json:"messages"`
	} `json:"messages"`
}

type apiMessage struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Body        string `json:"body"`
	DateAdded   string `json:"dateAdded"`
	MessageType string `json:"messageType"`
}

// FetchHistory returns the contact's prior messages in chronological order.
// Any provider failure is reported as ErrHistoryUnavailable.
func (c *Client) FetchHistory(ctx context.Context, contactID string) ([]conversation.Message, error) {
	if contactID == "" {
		return nil, nil
	}

	convID, err := c.findConversation(ctx, contactID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}
	if convID == "" {
		return nil, nil
	}

	var resp messagesResponse
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(convID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	messages := make([]conversation.Message, 0, len(resp.Messages.Messages))
	for _, m := range resp.Messages.Messages {
		if m.Body == "" {
			continue
		}
		role := conversation.RoleUser
		if strings.EqualFold(m.Direction, "outbound") {
			role = conversation.RoleAssistant
		}
		ts, err := time.Parse(time.RFC3339, m.DateAdded)
		if err != nil {
			ts = time.Time{}
		}
		messages = append(messages, conversation.Message{
			Role:       role,
			Text:       m.Body,
			Origin:     conversation.OriginHistorical,
			ExternalID: m.ID,
			Timestamp:  ts,
		})
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

func (c *Client) findConversation(ctx context.Context, contactID string) (string, error) {
	q := url.Values{}
	q.Set("contactId", contactID)
	if c.locationID != "" {
		q.Set("locationId", c.locationID)
	}

	var resp conversationSearchResponse
	if err := c.do(ctx, http.MethodGet, "/conversations/search?"+q.Encode(), nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Conversations) == 0 {
		return "", nil
	}
	return resp.Conversations[0].ID, nil
}

// SendMessage delivers an outbound SMS-type message to the contact.
func (c *Client) SendMessage(ctx context.Context, contactID, text string) error {
	if contactID == "" {
		return errors.New("ghl: contactID cannot be empty")
	}
	payload := map[string]string{
		"type":      "SMS",
		"contactId": contactID,
		"message":   text,
	}
	if err := c.do(ctx, http.MethodPost, "/conversations/messages", payload, nil); err != nil {
		return fmt.Errorf("ghl: failed to send message: %w", err)
	}
	return nil
}

// Contact is the subset of the provider contact record the pipeline uses.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// LookupContact fetches the provider contact record.
func (c *Client) LookupContact(ctx context.Context, contactID string) (*Contact, error) {
	var resp struct {
		Contact Contact `json:"contact"`
	}
	path := fmt.Sprintf("/contacts/%s", url.PathEscape(contactID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("ghl: failed to look up contact: %w", err)
	}
	return &resp.Contact, nil
}

// do issues one API call with bounded retries on 429 and 5xx responses.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ghl: failed to encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		c.logger.Debug("retrying GHL request", "method", method, "path", path, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("ghl: unexpected status %d: %s", e.status, e.body)
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return false
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ghl: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ghl: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{status: resp.StatusCode, body: string(snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ghl: failed to decode response: %w", err)
	}
	return nil
}
