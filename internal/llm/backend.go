package llm

import (
	"context"
	"fmt"
)

const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// NewBackend builds a provider backend bound to one API key.
func NewBackend(ctx context.Context, provider, apiKey string) (Backend, error) {
	switch provider {
	case ProviderOpenAI, "":
		return NewOpenAIBackend(apiKey), nil
	case ProviderGemini:
		b, err := NewGeminiBackend(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	case ProviderAnthropic:
		return NewAnthropicBackend(apiKey), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderAnthropic:
		return DefaultAnthropicModel
	default:
		return DefaultOpenAIModel
	}
}
