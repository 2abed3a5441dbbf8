package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rilot/proxy/internal/config"
)

func TestMatchNoRules(t *testing.T) {
	r := New(&config.Config{})
	if _, ok := r.Match("/anything"); ok {
		t.Fatal("expected no match against empty config")
	}
}

func TestMatchFirstWins(t *testing.T) {
	cfg := &config.Config{Proxies: []config.ProxyConfig{
		{AppName: "a", Rule: config.ProxyRule{Path: "/x", Type: config.MatchContain}},
		{AppName: "b", Rule: config.ProxyRule{Path: "/x/y", Type: config.MatchExact}},
	}}
	r := New(cfg)

	got, ok := r.Match("/x/y")
	require.True(t, ok, "expected a match")
	assert.Equal(t, "a", got.AppName, "expected first-in-order rule to win")
}

func TestMatchExactRejectsLongerPath(t *testing.T) {
	cfg := &config.Config{Proxies: []config.ProxyConfig{
		{AppName: "only", Rule: config.ProxyRule{Path: "/x/y", Type: config.MatchExact}},
	}}
	r := New(cfg)

	if _, ok := r.Match("/x/y/z"); ok {
		t.Fatal("exact rule must not match a longer path")
	}
}

func TestMatchNoNormalization(t *testing.T) {
	cfg := &config.Config{Proxies: []config.ProxyConfig{
		{AppName: "trailing", Rule: config.ProxyRule{Path: "/api/", Type: config.MatchExact}},
	}}
	r := New(cfg)

	if _, ok := r.Match("/api"); ok {
		t.Fatal("router must not fold trailing slashes")
	}
}

func TestMatchDeterministicAcrossCalls(t *testing.T) {
	cfg := &config.Config{Proxies: []config.ProxyConfig{
		{AppName: "api", Rule: config.ProxyRule{Path: "/api", Type: config.MatchContain}},
	}}
	r := New(cfg)

	first, _ := r.Match("/api/items")
	for i := 0; i < 10; i++ {
		got, ok := r.Match("/api/items")
		if !ok || got.AppName != first.AppName {
			t.Fatalf("routing is not deterministic on call %d", i)
		}
	}
}

func TestMatchReturns404Miss(t *testing.T) {
	cfg := &config.Config{Proxies: []config.ProxyConfig{
		{AppName: "api", Rule: config.ProxyRule{Path: "/api", Type: config.MatchContain}},
	}}
	r := New(cfg)

	if _, ok := r.Match("/other"); ok {
		t.Fatal("expected no match for unrelated path")
	}
}
