package extract

import (
	"fmt"

	"github.com/reviewlens/reviewlens/internal/config"
)

// NewProvider constructs the configured extraction provider.
// Called once at server startup.
func NewProvider(cfg config.ExtractConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.Anthropic, cfg.Timeout), nil
	case "mock":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q: must be one of openai, anthropic, mock", cfg.Provider)
	}
}
