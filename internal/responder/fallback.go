package responder

import (
	"context"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// Fallback tries each responder in order and returns the first success. The
// last entry should be a responder that cannot fail, such as a Template.
type Fallback struct {
	chain  []conversation.Responder
	logger *logging.Logger
}

// NewFallback builds a fallback chain. At least one responder is required.
func NewFallback(logger *logging.Logger, chain ...conversation.Responder) *Fallback {
	if len(chain) == 0 {
		panic("responder: fallback chain cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Fallback{chain: chain, logger: logger}
}

var _ conversation.Responder = (*Fallback)(nil)

func (f *Fallback) Respond(ctx context.Context, history []conversation.Message, facts conversation.Facts, score int) (*conversation.Reply, error) {
	var lastErr error
	for i, responder := range f.chain {
		reply, err := responder.Respond(ctx, history, facts, score)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if i < len(f.chain)-1 {
			f.logger.Warn("responder failed, falling back", "position", i, "error", err)
		}
	}
	return nil, lastErr
}
