package llm

import (
	"fmt"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/config"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/llm/generate"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/retry"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

// NewGenerator creates a generator based on configuration
func NewGenerator(cfg *config.LLMConfig) (types.Generator, error) {
	switch cfg.Generator.Provider {
	case "openai":
		return generate.NewOpenAIGenerator(cfg.Generator.Model, cfg.Generator.APIKeyEnv, cfg.Generator.APIKey)
	case "anthropic":
		return generate.NewAnthropicGenerator(cfg.Generator.Model, cfg.Generator.APIKeyEnv, cfg.Generator.APIKey)
	case "mock":
		return generate.NewMockGenerator(cfg.Generator.Model), nil
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", cfg.Generator.Provider)
	}
}

// NewLimitedGenerator builds the configured generator behind the request rate
// limit and retry policy.
func NewLimitedGenerator(cfg *config.Config) (*Limited, error) {
	gen, err := NewGenerator(&cfg.LLM)
	if err != nil {
		return nil, err
	}
	return NewLimited(gen, cfg.LLM.RequestsPerSecond, retry.FromConfig(cfg.Retry)), nil
}
