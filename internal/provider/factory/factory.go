package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"ollama-proxy/internal/config"
	"ollama-proxy/internal/provider"
	claudeProvider "ollama-proxy/internal/provider/claude"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs the upstream provider from
// configuration and stores it in the registry.
func RegisterConfiguredProviders(cfg config.Config, registry *provider.Registry, opts ...claudeProvider.Option) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	switch cfg.Upstream.Provider {
	case "", "claude":
	default:
		return fmt.Errorf("unsupported upstream provider %q", cfg.Upstream.Provider)
	}

	client := NewHTTPClient(cfg.Upstream)
	p, err := claudeProvider.New("claude", cfg.Upstream, client, opts...)
	if err != nil {
		return fmt.Errorf("initialise claude provider: %w", err)
	}
	if err := registry.RegisterProvider(p, cfg.Upstream.Aliases); err != nil {
		return fmt.Errorf("register claude provider: %w", err)
	}

	return nil
}

// NewHTTPClient builds the upstream client. It has no overall timeout because
// streamed responses may run for minutes; the dial and response-header
// timeouts bound the time to first byte instead.
func NewHTTPClient(cfg config.UpstreamConfig) *http.Client {
	dialTimeout := cfg.ConnectTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		// Event streams must reach the line splitter unbuffered.
		DisableCompression: true,
	}

	return &http.Client{
		Transport: transport,
	}
}
