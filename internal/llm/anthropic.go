package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultAnthropicModel = string(anthropic.ModelClaude4Sonnet20250514)

const anthropicJSONInstruction = "Respond with a single valid JSON object and nothing else."

type AnthropicBackend struct {
	client *anthropic.Client
}

func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{client: &client}
}

// Complete sends the conversation through the Messages API. There is no
// native JSON mode, so strict JSON is requested in the system prompt.
func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   4096,
		Temperature: anthropic.Float(float64(req.Temperature)),
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if req.JSONMode {
		params.System = append(params.System, anthropic.TextBlockParam{Text: anthropicJSONInstruction})
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.StatusCode, err)
		}
		return "", &TransportError{Err: err}
	}

	text := ""
	for _, block := range resp.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += block.Text
		}
	}
	if text == "" {
		return "", &TransportError{Err: errors.New("anthropic returned no text")}
	}
	return text, nil
}

func (b *AnthropicBackend) Close() error { return nil }
