package proxy

import (
	"net/http"
	"testing"

	"github.com/rilot/proxy/internal/ssrf"
)

func TestNewTransportDefaults(t *testing.T) {
	tr, err := NewTransport(DefaultTransportConfig)
	if err != nil {
		t.Fatalf("NewTransport() error = %v", err)
	}
	if tr.MaxIdleConns != DefaultTransportConfig.MaxIdleConns {
		t.Errorf("MaxIdleConns = %d, want %d", tr.MaxIdleConns, DefaultTransportConfig.MaxIdleConns)
	}
	if !tr.ForceAttemptHTTP2 {
		t.Error("expected ForceAttemptHTTP2 to be true")
	}
}

func TestNewTransportWithSSRFProtection(t *testing.T) {
	cfg := DefaultTransportConfig
	cfg.SSRFProtection = &ssrf.Config{}

	tr, err := NewTransport(cfg)
	if err != nil {
		t.Fatalf("NewTransport() error = %v", err)
	}
	if tr.DialContext == nil {
		t.Fatal("expected a non-nil DialContext when SSRF protection is configured")
	}
}

func TestNewTransportRejectsInvalidAllowCIDR(t *testing.T) {
	cfg := DefaultTransportConfig
	cfg.SSRFProtection = &ssrf.Config{AllowCIDRs: []string{"garbage"}}

	if _, err := NewTransport(cfg); err == nil {
		t.Fatal("expected error for invalid allow CIDR")
	}
}

func TestDefaultTransport(t *testing.T) {
	tr, err := DefaultTransport()
	if err != nil {
		t.Fatalf("DefaultTransport() error = %v", err)
	}
	var _ http.RoundTripper = tr
}
