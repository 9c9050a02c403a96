package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying provider.
// Each Embed call consumes one token regardless of batch size.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a token bucket of rps tokens per second.
func NewRateLimited(next Provider, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name implements Provider.
func (r *RateLimited) Name() string {
	return r.next.Name()
}

// Embed waits for a token, then delegates. A cancelled context aborts the wait.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Embed(ctx, texts)
}
