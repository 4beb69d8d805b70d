package script

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

type ClaudeGenerator struct {
	model  string
	client anthropic.Client
}

// NewClaudeGenerator builds a generator for a Claude model. An empty apiKey
// falls back to ANTHROPIC_API_KEY.
func NewClaudeGenerator(model, apiKey string) *ClaudeGenerator {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &ClaudeGenerator{model: model, client: anthropic.NewClient(opts...)}
}

func (g *ClaudeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	modelID := claudeModels[g.model]
	if modelID == "" {
		modelID = claudeModels["haiku"]
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   maxTokensForWords(req.TargetWords),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: buildSystemPrompt(req)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(req))),
		},
	}

	return generateWithRetry(ctx, "Claude", func() (string, error) {
		message, err := g.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		return extractText(message), nil
	})
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
