package providers

import (
	"context"
	"fmt"

	"github.com/osvaldoandrade/autodeploy/pkg/config"
)

// LLMClient sends one prompt to the AI oracle and returns the raw completion text.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

type Prompt struct {
	System string
	User   string
}

// NewLLMClient picks the implementation for cfg.Provider. Gemini is reached through its
// OpenAI-compatible endpoint, so both real providers share the openai-go client.
func NewLLMClient(cfg config.AIConfig) (LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return MockLLM{}, nil
	case config.ProviderOpenAI, config.ProviderGemini:
		return NewOpenAILLM(cfg)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}
