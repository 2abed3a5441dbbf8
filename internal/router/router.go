// Package router selects the proxy rule for an incoming request path.
//
// Matching is deterministic and intentionally unsophisticated: the
// router performs no path normalization (no trailing-slash folding, no
// case-folding, no percent-decoding) and no longest-prefix resolution.
// The first rule in configuration order whose Path matches wins.
package router

import "github.com/rilot/proxy/internal/config"

// Router matches request paths against an immutable Config.
type Router struct {
	cfg *config.Config
}

// New creates a Router over cfg. cfg is never mutated and may be shared
// across all request goroutines.
func New(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Match returns the first ProxyConfig whose rule matches path, in
// configuration order. The router never fails; an unmatched path
// reports ok=false so the caller can synthesize a 404.
func (r *Router) Match(path string) (cfg config.ProxyConfig, ok bool) {
	for _, p := range r.cfg.Proxies {
		if p.Rule.Matches(path) {
			return p, true
		}
	}
	return config.ProxyConfig{}, false
}
