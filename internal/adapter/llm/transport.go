package llm

import (
	"cmp"
	"net"
	"net/http"
	"time"

	"talentscan/internal/infra/config"
)

// Pool defaults for provider traffic. A CLI run talks to a handful of hosts,
// mostly one request at a time per host, with analysis stages overlapping.
var defaultPool = config.PoolConfig{
	MaxIdleConns:        16,
	MaxIdleConnsPerHost: 4,
	MaxConnsPerHost:     8,
	IdleConnTimeout:     90 * time.Second,
}

const (
	defaultConnTimeout = 10 * time.Second
	defaultRespTimeout = 90 * time.Second
)

// NewPooledTransport builds the transport shared by the HTTP adapters.
// Zero fields in pool take defaultPool.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   positive(connTimeout, defaultConnTimeout),
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: positive(respTimeout, defaultRespTimeout),
		MaxIdleConns:          positive(pool.MaxIdleConns, defaultPool.MaxIdleConns),
		MaxIdleConnsPerHost:   positive(pool.MaxIdleConnsPerHost, defaultPool.MaxIdleConnsPerHost),
		MaxConnsPerHost:       positive(pool.MaxConnsPerHost, defaultPool.MaxConnsPerHost),
		IdleConnTimeout:       positive(pool.IdleConnTimeout, defaultPool.IdleConnTimeout),
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient returns a client for one provider. The client timeout is only
// a backstop; the router's per-attempt deadline normally fires first.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	conn := positive(cfg.ConnTimeout, defaultConnTimeout)
	resp := positive(cfg.RespTimeout, defaultRespTimeout)
	return &http.Client{
		Transport: NewPooledTransport(conn, resp, cfg.Pool),
		Timeout:   conn + resp,
	}
}

func positive[T int | time.Duration](v, fallback T) T {
	return cmp.Or(max(v, 0), fallback)
}
