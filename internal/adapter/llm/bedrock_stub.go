//go:build !bedrock

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

func newBedrock(_ context.Context, _ config.ProviderConfig, _ *slog.Logger) (domain.LLMProvider, error) {
	return nil, fmt.Errorf("bedrock provider requires build with -tags bedrock")
}
