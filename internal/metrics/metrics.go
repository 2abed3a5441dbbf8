// Package metrics exposes Prometheus counters and histograms for the
// proxy's request pipeline and Wasm engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rilot"

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "Total number of proxied requests by route and response status.",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "proxy",
		Name:      "request_duration_seconds",
		Help:      "End-to-end request duration, from accept to response write.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	wasmInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wasm",
		Name:      "invocations_total",
		Help:      "Total override-module invocations by outcome.",
	}, []string{"result"})

	wasmCompileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wasm",
		Name:      "compile_total",
		Help:      "Total component compilations by cache state.",
	}, []string{"cache_state"})

	wasmCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wasm",
		Name:      "cache_size",
		Help:      "Number of distinct compiled components currently cached.",
	})
)

func init() {
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())
}

// RecordRequest records a completed proxied request.
func RecordRequest(route string, status int, duration time.Duration) {
	requestsTotal.WithLabelValues(route, statusLabel(status)).Inc()
	requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// WasmResult labels an override-module invocation outcome.
type WasmResult string

const (
	WasmResultOK    WasmResult = "ok"
	WasmResultError WasmResult = "error"
)

// RecordWasmInvocation records the outcome of one override-module call.
func RecordWasmInvocation(result WasmResult) {
	wasmInvocationsTotal.WithLabelValues(string(result)).Inc()
}

// CacheState labels whether a compile was served from cache or not.
type CacheState string

const (
	CacheHit  CacheState = "hit"
	CacheMiss CacheState = "miss"
)

// RecordWasmCompile records a component compilation and its cache state.
func RecordWasmCompile(state CacheState) {
	wasmCompileTotal.WithLabelValues(string(state)).Inc()
}

// SetCacheSize reports the current size of the compiled-component cache.
func SetCacheSize(n int) {
	wasmCacheSize.Set(float64(n))
}

// Handler returns the HTTP handler that serves the Prometheus exposition
// format, for mounting on the admin listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
