package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

var breakerDefaults = config.CircuitBreakerConfig{
	MaxFailures: 5,
	Timeout:     30 * time.Second,
	Interval:    time.Minute,
}

// BreakerProvider stops calling a backend that keeps failing. While open,
// Chat returns domain.ErrCircuitOpen immediately so the router moves to the
// next candidate without spending the attempt timeout.
type BreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewBreakerProvider wraps inner. Zero fields in cfg take breakerDefaults.
func NewBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerProvider {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = breakerDefaults.MaxFailures
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = breakerDefaults.Timeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = breakerDefaults.Interval
	}

	name := inner.Name()
	return &BreakerProvider{
		inner: inner,
		breaker: gobreaker.NewCircuitBreaker[*domain.ChatResponse](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.MaxFailures
			},
			OnStateChange: func(_ string, from, to gobreaker.State) {
				logger.Warn("llm provider breaker", "provider", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool { return !isOutage(err) },
		}),
	}
}

// isOutage reports whether err says something about backend health. Caller
// cancellation, oversize prompts and unusable text do not.
func isOutage(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrContextLength),
		errors.Is(err, domain.ErrResponseParse),
		errors.Is(err, domain.ErrInvalidInput):
		return false
	default:
		return true
	}
}

// Chat implements domain.LLMProvider.
func (p *BreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewDomainError("BreakerProvider.Chat", domain.ErrCircuitOpen, p.inner.Name())
	}
	return resp, err
}

// Name implements domain.LLMProvider.
func (p *BreakerProvider) Name() string { return p.inner.Name() }

// State exposes the breaker state to health checks.
func (p *BreakerProvider) State() gobreaker.State { return p.breaker.State() }

var _ domain.LLMProvider = (*BreakerProvider)(nil)
