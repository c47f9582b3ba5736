package ghl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "test-key", "loc-1", logging.New("error"), WithRetries(2))
	return client, srv
}

func TestFetchHistoryMapsMessages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c-1", r.URL.Query().Get("contactId"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]string{{"id": "conv-9"}},
		})
	})
	mux.HandleFunc("/conversations/conv-9/messages", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"messages": map[string]any{
				"messages": []map[string]string{
					{"id": "m-2", "direction": "outbound", "body": "hello!", "dateAdded": "2026-03-01T10:01:00Z"},
					{"id": "m-1", "direction": "inbound", "body": "hi", "dateAdded": "2026-03-01T10:00:00Z"},
					{"id": "m-3", "direction": "inbound", "body": "", "dateAdded": "2026-03-01T10:02:00Z"},
				},
			},
		})
	})

	client, _ := newTestClient(t, mux)
	messages, err := client.FetchHistory(context.Background(), "c-1")

	require.NoError(t, err)
	require.Len(t, messages, 2, "empty bodies are dropped")
	assert.Equal(t, conversation.RoleUser, messages[0].Role, "sorted chronologically")
	assert.Equal(t, "m-1", messages[0].ExternalID)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)
	assert.Equal(t, conversation.OriginHistorical, messages[1].Origin)
}

func TestFetchHistoryNoConversation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations/search", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"conversations": []any{}})
	})

	client, _ := newTestClient(t, mux)
	messages, err := client.FetchHistory(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestFetchHistoryProviderErrorIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))

	_, err := client.FetchHistory(context.Background(), "c-1")

	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}

func TestSendMessagePostsSMS(t *testing.T) {
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations/messages", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	})

	client, _ := newTestClient(t, mux)
	err := client.SendMessage(context.Background(), "c-1", "your reply")

	require.NoError(t, err)
	assert.Equal(t, "SMS", got["type"])
	assert.Equal(t, "c-1", got["contactId"])
	assert.Equal(t, "your reply", got["message"])
}

func TestRetriesOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "throttled", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	err := client.SendMessage(context.Background(), "c-1", "hello")

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	err := client.SendMessage(context.Background(), "c-1", "hello")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupContact(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/contacts/c-1", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]string{"id": "c-1", "name": "Ana", "email": "ana@x.com"},
		})
	})

	client, _ := newTestClient(t, mux)
	contact, err := client.LookupContact(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Equal(t, "Ana", contact.Name)
}
