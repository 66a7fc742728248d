// Package llm builds extraction providers and wraps them with request pacing
// and retries.
package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/retry"
	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/types"
)

// Limited paces calls to a Generator and retries transient failures.
type Limited struct {
	gen     types.Generator
	limiter *rate.Limiter
	policy  retry.Policy
}

// NewLimited allows rps requests per second. A non-positive rps disables
// pacing.
func NewLimited(gen types.Generator, rps float64, policy retry.Policy) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limited{
		gen:     gen,
		limiter: rate.NewLimiter(limit, 1),
		policy:  policy,
	}
}

func (l *Limited) Complete(ctx context.Context, prompt string, opts map[string]any) (string, error) {
	return retry.Do(ctx, l.policy, "llm.complete", func(ctx context.Context) (string, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
		return l.gen.Complete(ctx, prompt, opts)
	})
}

func (l *Limited) Model() string {
	return l.gen.Model()
}

var _ types.Generator = (*Limited)(nil)
