package responder

import (
	"context"
	"strings"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
)

// Template is a deterministic responder that asks for the highest-value
// missing fact for its stage. It needs no external services, so it doubles
// as the fallback when model providers are unavailable.
type Template struct {
	stage conversation.Stage
}

// NewTemplate creates a template responder for the given stage.
func NewTemplate(stage conversation.Stage) *Template {
	return &Template{stage: stage}
}

var _ conversation.Responder = (*Template)(nil)

func (t *Template) Respond(_ context.Context, history []conversation.Message, facts conversation.Facts, _ int) (*conversation.Reply, error) {
	greeting := ""
	if name, ok := facts[conversation.FactName]; ok {
		greeting = firstName(name) + ", "
	}

	switch t.stage {
	case conversation.StageCold:
		return &conversation.Reply{Text: t.coldReply(greeting, facts)}, nil
	case conversation.StageWarm:
		return &conversation.Reply{Text: t.warmReply(greeting, facts)}, nil
	default:
		return t.hotReply(greeting, history), nil
	}
}

func (t *Template) coldReply(greeting string, facts conversation.Facts) string {
	if !facts.Has(conversation.FactName) {
		return "Thanks for reaching out! I'd love to help. What's your name?"
	}
	if !facts.Has(conversation.FactNeedCategory) {
		return greeting + "great to meet you! What kind of help is your business looking for right now?"
	}
	if !facts.Has(conversation.FactBusinessType) {
		return greeting + "got it. What kind of business do you run?"
	}
	return greeting + "thanks for the details! Can you tell me a bit more about what you're hoping to achieve?"
}

func (t *Template) warmReply(greeting string, facts conversation.Facts) string {
	if !facts.Has(conversation.FactBudget) {
		return greeting + "to point you in the right direction, do you have a monthly budget in mind?"
	}
	if !facts.Has(conversation.FactUrgency) {
		return greeting + "perfect. How soon are you looking to get started?"
	}
	return greeting + "that all sounds doable. Anything else I should know before we talk next steps?"
}

func (t *Template) hotReply(greeting string, history []conversation.Message) *conversation.Reply {
	if confirmsBooking(history) {
		return &conversation.Reply{
			Text: greeting + "wonderful! I'll have our team reach out shortly to lock in a time. " +
				"Talk soon!",
			Resolved: true,
		}
	}
	return &conversation.Reply{
		Text: greeting + "you sound like a great fit. Would you be open to a quick 15-minute call " +
			"with our team this week?",
	}
}

var bookingTerms = []string{
	"yes", "yeah", "sure", "sounds good", "let's do it", "book", "schedule", "that works",
}

// confirmsBooking reports whether the latest user message accepts the call
// proposal that a prior hot-stage reply made.
func confirmsBooking(history []conversation.Message) bool {
	var lastUser, lastAssistant string
	for _, msg := range history {
		switch msg.Role {
		case conversation.RoleUser:
			lastUser = strings.ToLower(msg.Text)
		case conversation.RoleAssistant:
			lastAssistant = strings.ToLower(msg.Text)
			lastUser = ""
		}
	}
	if !strings.Contains(lastAssistant, "call") {
		// No proposal was on the table yet.
		return false
	}
	for _, term := range bookingTerms {
		if strings.Contains(lastUser, term) {
			return true
		}
	}
	return false
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
