package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// ErrNoIdentity indicates the inbound payload carried no usable identifier.
// The turn cannot proceed: synthesizing a random key would silently start a
// new, disconnected conversation.
var ErrNoIdentity = errors.New("conversation: no usable identifiers in request")

// RawIdentifiers are the identifiers an inbound delivery may carry. Upstream
// webhooks are inconsistent about which fields they include.
type RawIdentifiers struct {
	ContactID              string
	SessionID              string
	ExternalConversationID string
}

// AliasStore persists the contact → conversation-key association so a
// delivery that omits the session identifier still maps to the same record.
type AliasStore interface {
	// LinkContact records that the contact's conversation lives under key.
	LinkContact(ctx context.Context, contactID, key string) error
	// KeyForContact returns the last linked key, or "" when none is known.
	KeyForContact(ctx context.Context, contactID string) (string, error)
}

// Resolver derives one stable conversation key from heterogeneous inbound
// identifiers. Key-derivation policy lives here and nowhere else.
type Resolver struct {
	aliases AliasStore
	logger  *logging.Logger
}

// NewResolver wires a resolver around the supplied alias store.
func NewResolver(aliases AliasStore, logger *logging.Logger) *Resolver {
	if aliases == nil {
		panic("conversation: alias store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{aliases: aliases, logger: logger}
}

// Resolve maps the identifiers to a conversation key.
//
// Preference order: session id, then externally supplied conversation id, then
// the contact's persisted alias, then a contact-derived key. When a session id
// arrives for a contact that already has a linked key, the existing key wins
// so a rotated session id does not fork history; the alias is left pointing at
// the original key.
func (r *Resolver) Resolve(ctx context.Context, ids RawIdentifiers) (string, error) {
	contactID := strings.TrimSpace(ids.ContactID)
	sessionID := strings.TrimSpace(ids.SessionID)
	externalID := strings.TrimSpace(ids.ExternalConversationID)

	if contactID == "" && sessionID == "" && externalID == "" {
		return "", ErrNoIdentity
	}

	candidate := ""
	switch {
	case sessionID != "":
		candidate = sessionKey(sessionID)
	case externalID != "":
		candidate = sessionKey(externalID)
	}

	if contactID == "" {
		return candidate, nil
	}

	linked, err := r.aliases.KeyForContact(ctx, contactID)
	if err != nil {
		// Alias lookup failure degrades to the candidate key when one exists;
		// with only a contact id the turn cannot proceed safely.
		if candidate != "" {
			r.logger.Warn("alias lookup failed, using session-derived key",
				"contact_id", contactID, "error", err)
			return candidate, nil
		}
		return "", fmt.Errorf("conversation: alias lookup failed: %w", err)
	}

	if candidate == "" {
		if linked != "" {
			return linked, nil
		}
		key := contactKey(contactID)
		if err := r.aliases.LinkContact(ctx, contactID, key); err != nil {
			r.logger.Warn("failed to link contact alias", "contact_id", contactID, "error", err)
		}
		return key, nil
	}

	if linked != "" && linked != candidate {
		r.logger.Info("session id rotated, keeping linked conversation key",
			"contact_id", contactID, "linked_key", linked, "candidate_key", candidate)
		return linked, nil
	}
	if linked == "" {
		if err := r.aliases.LinkContact(ctx, contactID, candidate); err != nil {
			r.logger.Warn("failed to link contact alias", "contact_id", contactID, "error", err)
		}
	}
	return candidate, nil
}

func sessionKey(id string) string {
	return "conv:session:" + id
}

func contactKey(id string) string {
	return "conv:contact:" + id
}

// MemoryAliasStore is an AliasStore backed by a plain map, for tests and
// single-process deployments.
type MemoryAliasStore struct {
	aliases map[string]string
}

// NewMemoryAliasStore creates an empty in-memory alias store.
func NewMemoryAliasStore() *MemoryAliasStore {
	return &MemoryAliasStore{aliases: make(map[string]string)}
}

func (s *MemoryAliasStore) LinkContact(_ context.Context, contactID, key string) error {
	s.aliases[contactID] = key
	return nil
}

func (s *MemoryAliasStore) KeyForContact(_ context.Context, contactID string) (string, error) {
	return s.aliases[contactID], nil
}
