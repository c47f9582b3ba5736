// Package responder provides the stage responders the turn pipeline
// dispatches to: deterministic templates for degraded operation and
// model-backed responders for normal operation.
package responder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
)

const maxPromptMessages = 20

var stageGoals = map[conversation.Stage]string{
	conversation.StageCold: "The lead is cold. Learn their name and what kind of help their business needs. " +
		"Ask one short question at a time. Do not discuss pricing yet.",
	conversation.StageWarm: "The lead is warm. Confirm their budget and how soon they want to start. " +
		"Keep replies under three sentences.",
	conversation.StageHot: "The lead is hot. Propose a concrete next step: a short call with the team. " +
		"Offer to schedule it and confirm their preferred time.",
}

// systemPrompt renders the stage instructions plus everything already known
// about the lead, so the model never re-asks answered questions.
func systemPrompt(stage conversation.Stage, facts conversation.Facts, score int) string {
	var b strings.Builder
	b.WriteString("You are a friendly marketing agency assistant qualifying inbound leads over SMS.\n")
	b.WriteString(stageGoals[stage])
	b.WriteString(fmt.Sprintf("\nCurrent qualification score: %d/10.\n", score))

	if len(facts) > 0 {
		b.WriteString("Known about this lead (never ask for these again):\n")
		names := make([]string, 0, len(facts))
		for name := range facts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b.WriteString(fmt.Sprintf("- %s: %s\n", name, facts[name]))
		}
	}
	return b.String()
}

// promptTurn is one history entry in provider-neutral form.
type promptTurn struct {
	FromUser bool
	Text     string
}

// promptHistory converts the transcript tail into alternating turns, merging
// consecutive same-role messages because most model APIs reject repeats.
func promptHistory(history []conversation.Message) []promptTurn {
	if len(history) > maxPromptMessages {
		history = history[len(history)-maxPromptMessages:]
	}

	turns := make([]promptTurn, 0, len(history))
	for _, msg := range history {
		fromUser := msg.Role == conversation.RoleUser
		if n := len(turns); n > 0 && turns[n-1].FromUser == fromUser {
			turns[n-1].Text += "\n" + msg.Text
			continue
		}
		turns = append(turns, promptTurn{FromUser: fromUser, Text: msg.Text})
	}

	// Model APIs require the transcript to open with a user turn.
	for len(turns) > 0 && !turns[0].FromUser {
		turns = turns[1:]
	}
	return turns
}
