package probe

import (
	"net/http"
	"time"
)

// TransportConfig holds connection pool settings for the shared probe client.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// NewHTTPClient creates the HTTP client shared by all RPC probes.
// Per-request deadlines come from the probe context, so the client itself has
// no overall timeout.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 20
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 2
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		// Connection pool settings
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		// Timeouts
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		ForceAttemptHTTP2: true,
	}

	return &http.Client{Transport: transport}
}
