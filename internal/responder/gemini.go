package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

// Gemini generates stage replies with the Google Generative AI API.
type Gemini struct {
	client    *genai.Client
	modelName string
	stage     conversation.Stage
	logger    *logging.Logger
}

// NewGemini creates a Gemini-backed responder for the given stage.
func NewGemini(client *genai.Client, modelName string, stage conversation.Stage, logger *logging.Logger) *Gemini {
	if client == nil {
		panic("responder: gemini client cannot be nil")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gemini{
		client:    client,
		modelName: modelName,
		stage:     stage,
		logger:    logger,
	}
}

var _ conversation.Responder = (*Gemini)(nil)

func (g *Gemini) Respond(ctx context.Context, history []conversation.Message, facts conversation.Facts, score int) (*conversation.Reply, error) {
	turns := promptHistory(history)
	if len(turns) == 0 {
		return nil, errors.New("responder: no user messages to respond to")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt(g.stage, facts, score))},
	}
	model.SetMaxOutputTokens(300)
	model.SetTemperature(0.6)

	session := model.StartChat()
	for _, turn := range turns[:len(turns)-1] {
		role := "user"
		if !turn.FromUser {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Text)},
		})
	}

	resp, err := session.SendMessage(ctx, genai.Text(turns[len(turns)-1].Text))
	if err != nil {
		return nil, fmt.Errorf("responder: gemini generation failed: %w", err)
	}

	text := extractGeminiText(resp)
	if text == "" {
		return nil, errors.New("responder: gemini returned an empty reply")
	}

	g.logger.Debug("gemini reply generated", "stage", g.stage, "model", g.modelName)
	return &conversation.Reply{Text: text}, nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
