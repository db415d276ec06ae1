package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"talentscan/internal/domain"
)

// RateLimitedProvider throttles calls to a provider with a token bucket so a
// burst of pipeline stages does not trip the vendor's per-minute limits.
type RateLimitedProvider struct {
	inner   domain.LLMProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows requestsPerMinute calls per minute with a
// burst of one. A non-positive rate leaves calls unthrottled.
func NewRateLimitedProvider(inner domain.LLMProvider, requestsPerMinute int) *RateLimitedProvider {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Chat waits for a token and then delegates. Waiting honours ctx, so a
// per-attempt deadline shorter than the refill interval fails fast.
func (p *RateLimitedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: provider %q local limiter: %v", domain.ErrRateLimit, p.inner.Name(), err)
	}
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// Unwrap returns the throttled provider.
func (p *RateLimitedProvider) Unwrap() domain.LLMProvider { return p.inner }

var _ domain.LLMProvider = (*RateLimitedProvider)(nil)
