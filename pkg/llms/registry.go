package llms

import (
	"context"
	"fmt"

	"github.com/recapd/recapd/pkg/config"
)

// NewProvider constructs the generation provider named by the configuration.
func NewProvider(ctx context.Context, cfg *config.LLMProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("llm provider configuration is required")
	}
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg)
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider type: %s", cfg.Type)
	}
}
