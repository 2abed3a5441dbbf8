// Package config loads the static JSON file that maps request paths to
// upstream backends and, optionally, a Wasm override module.
//
// Loading is intentionally a thin deserializer: the spec treats config
// file parsing as an external collaborator, not part of the hardened
// core. There is no hot-reload and no partial-load mode — a bad file is
// a fatal startup error.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// MatchType selects how a ProxyRule's Path is compared against a request path.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchContain MatchType = "contain"
)

// RewriteMode selects whether the matched rule's prefix is stripped
// from the forwarded path.
type RewriteMode string

const (
	RewriteNone  RewriteMode = "none"
	RewriteStrip RewriteMode = "strip"
)

// ProxyRule is one routing entry.
type ProxyRule struct {
	Path string    `json:"path"`
	Type MatchType `json:"type"`
}

// Matches reports whether requestPath satisfies this rule. An unknown or
// empty Type degrades to MatchContain (prefix match), per spec.
// No normalization is performed: no trailing-slash fold, no case-fold,
// no percent-decoding. This asymmetry is intentional.
func (r ProxyRule) Matches(requestPath string) bool {
	if r.Type == MatchExact {
		return requestPath == r.Path
	}
	return strings.HasPrefix(requestPath, r.Path)
}

// ProxyConfig is one route binding: a rule plus the upstream and
// optional Wasm override it forwards to.
type ProxyConfig struct {
	AppName      string      `json:"app_name"`
	AppURI       string      `json:"app_uri"`
	OverrideFile string      `json:"override_file,omitempty"`
	Rule         ProxyRule   `json:"rule"`
	Rewrite      RewriteMode `json:"rewrite,omitempty"`
}

// HasOverride reports whether this route has an associated Wasm override module.
func (p ProxyConfig) HasOverride() bool {
	return p.OverrideFile != ""
}

// Config is the ordered sequence of route bindings. Order is significant:
// the first matching rule wins. Config is immutable after Load and is
// safe to share (by pointer) across all request goroutines.
type Config struct {
	Proxies []ProxyConfig `json:"proxies"`
}

// fileFormat mirrors the on-disk JSON shape. Unknown fields are ignored
// by encoding/json's default decode behavior.
type fileFormat struct {
	Proxies []ProxyConfig `json:"proxies"`
}

// Load reads and parses the configuration file at path. It validates
// that every ProxyConfig.AppURI is a syntactically valid absolute URI;
// any other validation is left to first use, per spec.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg := &Config{Proxies: ff.Proxies}
	for i, p := range cfg.Proxies {
		u, err := url.Parse(p.AppURI)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("config: proxies[%d] (%s): app_uri %q is not a valid absolute URI", i, p.AppName, p.AppURI)
		}
	}
	return cfg, nil
}
