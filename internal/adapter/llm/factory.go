package llm

import (
	"context"
	"fmt"
	"log/slog"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

// NewProvider builds the adapter for pc.Type.
func NewProvider(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return NewOpenAIProvider(pc, logger), nil
	case "anthropic":
		return NewAnthropicProvider(pc, logger), nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, pc, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "bedrock":
		return newBedrock(ctx, pc, logger)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}
}

// Wrap applies the optional per-provider decorators. The rate limiter sits
// outside the circuit breaker so locally throttled calls never count as
// breaker failures.
func Wrap(p domain.LLMProvider, pc config.ProviderConfig, cb config.CircuitBreakerConfig, logger *slog.Logger) domain.LLMProvider {
	if cb.Enabled {
		p = NewBreakerProvider(p, cb, logger)
	}
	if pc.RequestsPerMinute > 0 {
		p = NewRateLimitedProvider(p, pc.RequestsPerMinute)
	}
	return p
}
