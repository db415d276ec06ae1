package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"together", "groq"} {
		require.NoError(t, reg.Register(NewOpenAIProvider(config.ProviderConfig{Name: name, Model: "m"}, newTestLogger())))
	}

	got, err := reg.Get("groq")
	require.NoError(t, err)
	assert.Equal(t, "groq", got.Name())
	assert.Equal(t, []string{"groq", "together"}, reg.List())

	// Providers hands out a copy.
	snapshot := reg.Providers()
	delete(snapshot, "groq")
	assert.Len(t, reg.Providers(), 2)
}

func TestRegistryRejectsBadNames(t *testing.T) {
	reg := NewRegistry()
	p := NewOpenAIProvider(config.ProviderConfig{Name: "dup"}, newTestLogger())
	require.NoError(t, reg.Register(p))

	assert.ErrorIs(t, reg.Register(p), domain.ErrInvalidInput)
	assert.ErrorIs(t, reg.Register(&mockProvider{}), domain.ErrInvalidInput)
}

func TestRegistryNotFound(t *testing.T) {
	_, err := NewRegistry().Get("nonexistent")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestRegistryBreakerState(t *testing.T) {
	calls := 0
	reg := NewRegistry()
	require.NoError(t, reg.Register(okProvider("plain", &calls)))
	require.NoError(t, reg.Register(Wrap(okProvider("guarded", &calls),
		config.ProviderConfig{RequestsPerMinute: 60},
		config.CircuitBreakerConfig{Enabled: true}, newTestLogger())))

	assert.Equal(t, "-", reg.BreakerState("plain"))
	assert.Equal(t, "closed", reg.BreakerState("guarded"))
	assert.Equal(t, "-", reg.BreakerState("missing"))
}
