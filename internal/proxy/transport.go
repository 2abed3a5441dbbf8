// Package proxy builds the outbound HTTP transport the request pipeline
// uses to dispatch to upstream applications.
package proxy

import (
	"net"
	"net/http"
	"time"

	"github.com/rilot/proxy/internal/ssrf"
)

// TransportConfig configures the outbound HTTP transport.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	ExpectContinueTimeout time.Duration

	DisableKeepAlives bool

	// SSRFProtection, when non-nil, routes dialing through a
	// ssrf.SafeDialer built from this config.
	SSRFProtection *ssrf.Config
}

// DefaultTransportConfig provides default transport settings.
var DefaultTransportConfig = TransportConfig{
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	DialTimeout:           30 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 0,
	ExpectContinueTimeout: time.Second,
}

// NewTransport creates a new HTTP transport with the given configuration.
// When cfg.SSRFProtection is set, every dial is routed through a
// ssrf.SafeDialer so an override module cannot redirect the proxy at a
// private or reserved address.
func NewTransport(cfg TransportConfig) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	dialCtx := dialer.DialContext
	if cfg.SSRFProtection != nil {
		sd, err := ssrf.New(dialer, *cfg.SSRFProtection)
		if err != nil {
			return nil, err
		}
		dialCtx = sd.DialContext
	}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialCtx,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		ForceAttemptHTTP2:     true,
	}, nil
}

// DefaultTransport creates a transport with default settings and no SSRF
// protection. Callers that dispatch to configured upstream apps should
// use NewTransport with SSRFProtection set instead.
func DefaultTransport() (*http.Transport, error) {
	return NewTransport(DefaultTransportConfig)
}
