package conversation

import (
	"context"
	"fmt"
)

// Reply is what a responder proposes for one turn. Responders never write the
// store: fact updates flow back through the monotonic merge before persistence.
type Reply struct {
	Text        string
	FactUpdates Facts
	// Resolved signals that the responder considers the conversation done
	// (booked, handed off, or explicitly closed by the lead).
	Resolved bool
}

// Responder produces the assistant's reply for one turn.
type Responder interface {
	Respond(ctx context.Context, history []Message, facts Facts, score int) (*Reply, error)
}

// Registry maps responder stages to implementations.
type Registry struct {
	responders map[Stage]Responder
}

// NewRegistry creates an empty responder registry.
func NewRegistry() *Registry {
	return &Registry{responders: make(map[Stage]Responder)}
}

// Register binds a responder to a stage, replacing any previous binding.
func (r *Registry) Register(stage Stage, responder Responder) {
	if responder == nil {
		panic("conversation: responder cannot be nil")
	}
	r.responders[stage] = responder
}

// Get returns the responder for the stage.
func (r *Registry) Get(stage Stage) (Responder, error) {
	responder, ok := r.responders[stage]
	if !ok {
		return nil, fmt.Errorf("conversation: no responder registered for stage %q", stage)
	}
	return responder, nil
}
