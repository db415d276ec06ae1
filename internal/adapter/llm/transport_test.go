package llm

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscan/internal/infra/config"
)

func TestNewPooledTransportDefaults(t *testing.T) {
	tr := NewPooledTransport(0, -time.Second, config.PoolConfig{MaxConnsPerHost: -3})

	assert.Equal(t, defaultPool.MaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultPool.MaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultPool.MaxConnsPerHost, tr.MaxConnsPerHost)
	assert.Equal(t, defaultPool.IdleConnTimeout, tr.IdleConnTimeout)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)
	assert.True(t, tr.ForceAttemptHTTP2)
}

func TestNewPooledTransportCustom(t *testing.T) {
	tr := NewPooledTransport(15*time.Second, 60*time.Second, config.PoolConfig{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     30,
		IdleConnTimeout:     5 * time.Minute,
	})

	assert.Equal(t, 50, tr.MaxIdleConns)
	assert.Equal(t, 25, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 30, tr.MaxConnsPerHost)
	assert.Equal(t, 5*time.Minute, tr.IdleConnTimeout)
	assert.Equal(t, 60*time.Second, tr.ResponseHeaderTimeout)
}

func TestNewHTTPClientTimeout(t *testing.T) {
	client := NewHTTPClient(config.ProviderConfig{ConnTimeout: time.Second, RespTimeout: 2 * time.Second})
	assert.Equal(t, 3*time.Second, client.Timeout)
	_, ok := client.Transport.(*http.Transport)
	require.True(t, ok)

	assert.Equal(t, defaultConnTimeout+defaultRespTimeout, NewHTTPClient(config.ProviderConfig{}).Timeout)
}
