package mailbox

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/jkoufopoulos/shopq-prototype-sub003/internal/retry"
)

// Throttled spaces calls to an underlying Source by a fixed delay and retries
// transient failures.
type Throttled struct {
	src     Source
	limiter *rate.Limiter
	policy  retry.Policy
}

// NewThrottled wraps src. A zero delay disables rate limiting.
func NewThrottled(src Source, delay time.Duration, policy retry.Policy) *Throttled {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttled{src: src, limiter: rate.NewLimiter(limit, 1), policy: policy}
}

func (t *Throttled) List(ctx context.Context, q Query) ([]Message, error) {
	return retry.Do(ctx, t.policy, "mailbox.list", func(ctx context.Context) ([]Message, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return t.src.List(ctx, q)
	})
}

func (t *Throttled) FetchBody(ctx context.Context, id string) (string, error) {
	return retry.Do(ctx, t.policy, "mailbox.fetch_body", func(ctx context.Context) (string, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}
		return t.src.FetchBody(ctx, id)
	})
}

// Compile-time interface check
var _ Source = (*Throttled)(nil)
