package types

import "context"

// Generator produces text completions from prompts
type Generator interface {
	Complete(ctx context.Context, prompt string, opts map[string]any) (string, error)
	Model() string
}

// GenerationOptions contains options for text generation. Providers read them
// from the opts map under the same json names.
type GenerationOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	System      string  `json:"system,omitempty"`
}

// Map converts the options to the map form Complete accepts.
func (o GenerationOptions) Map() map[string]any {
	out := map[string]any{}
	if o.MaxTokens > 0 {
		out["max_tokens"] = o.MaxTokens
	}
	if o.Temperature > 0 {
		out["temperature"] = o.Temperature
	}
	if o.System != "" {
		out["system"] = o.System
	}
	return out
}
