package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// AdminHandler exposes support operations on conversation snapshots.
type AdminHandler struct {
	store  conversation.SnapshotStore
	logger *logging.Logger
}

func NewAdminHandler(store conversation.SnapshotStore, logger *logging.Logger) *AdminHandler {
	if store == nil {
		panic("handlers: snapshot store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{store: store, logger: logger}
}

// GetSnapshot returns the snapshot for a conversation key.
func (h *AdminHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "conversation key is required", http.StatusBadRequest)
		return
	}

	snap, version, err := h.store.Load(r.Context(), key)
	if errors.Is(err, conversation.ErrSnapshotNotFound) {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load snapshot", "conversation_key", key, "error", err)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Snapshot *conversation.Snapshot `json:"snapshot"`
		Version  int64                  `json:"version"`
	}{Snapshot: snap, Version: version})
}

// requeueRetryLimit bounds version-conflict retries for the requeue action.
const requeueRetryLimit = 3

// Requeue clears the routing pin on a conversation so the next inbound
// message can change stage again. Used by support after a human has handled
// an escalated lead.
func (h *AdminHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		http.Error(w, "conversation key is required", http.StatusBadRequest)
		return
	}

	for attempt := 0; attempt < requeueRetryLimit; attempt++ {
		snap, version, err := h.store.Load(r.Context(), key)
		if errors.Is(err, conversation.ErrSnapshotNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		if err != nil {
			h.logger.Error("failed to load snapshot", "conversation_key", key, "error", err)
			http.Error(w, "failed to load conversation", http.StatusInternalServerError)
			return
		}

		snap.Routing.Attempts = 0
		snap.Routing.EscalationReason = ""
		snap.Routing.ShouldEnd = false

		err = h.store.Store(r.Context(), key, snap, version)
		if errors.Is(err, conversation.ErrVersionConflict) {
			continue
		}
		if err != nil {
			h.logger.Error("failed to store snapshot", "conversation_key", key, "error", err)
			http.Error(w, "failed to update conversation", http.StatusInternalServerError)
			return
		}

		h.logger.Info("conversation requeued", "conversation_key", key)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "requeued"})
		return
	}

	http.Error(w, "conversation is being updated, retry later", http.StatusConflict)
}
