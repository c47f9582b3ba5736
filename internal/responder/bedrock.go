package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/palinopr/ghl-lead-agent/internal/conversation"
	"github.com/palinopr/ghl-lead-agent/pkg/logging"
)

type bedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Bedrock generates stage replies with the Bedrock Converse API.
type Bedrock struct {
	client  bedrockAPI
	modelID string
	stage   conversation.Stage
	logger  *logging.Logger
}

// NewBedrock creates a Bedrock-backed responder for the given stage.
func NewBedrock(client *bedrockruntime.Client, modelID string, stage conversation.Stage, logger *logging.Logger) *Bedrock {
	if client == nil {
		panic("responder: bedrock client cannot be nil")
	}
	if modelID == "" {
		panic("responder: bedrock modelID cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Bedrock{
		client:  client,
		modelID: modelID,
		stage:   stage,
		logger:  logger,
	}
}

var _ conversation.Responder = (*Bedrock)(nil)

func (b *Bedrock) Respond(ctx context.Context, history []conversation.Message, facts conversation.Facts, score int) (*conversation.Reply, error) {
	turns := promptHistory(history)
	if len(turns) == 0 {
		return nil, errors.New("responder: no user messages to respond to")
	}

	messages := make([]brtypes.Message, 0, len(turns))
	for _, turn := range turns {
		role := brtypes.ConversationRoleUser
		if !turn.FromUser {
			role = brtypes.ConversationRoleAssistant
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: turn.Text}},
		})
	}

	output, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(b.modelID),
		Messages: messages,
		System: []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: systemPrompt(b.stage, facts, score)},
		},
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens:   aws.Int32(300),
			Temperature: aws.Float32(0.6),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("responder: bedrock converse failed: %w", err)
	}

	text := extractConverseText(output)
	if text == "" {
		return nil, errors.New("responder: bedrock returned an empty reply")
	}

	b.logger.Debug("bedrock reply generated", "stage", b.stage, "model_id", b.modelID)
	return &conversation.Reply{Text: text}, nil
}

func extractConverseText(output *bedrockruntime.ConverseOutput) string {
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	var parts []string
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			parts = append(parts, text.Value)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
