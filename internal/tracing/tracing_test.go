package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigFromEnvDefaultsDisabled(t *testing.T) {
	cfg := ConfigFromEnv()
	if cfg.Enabled {
		t.Fatal("expected tracing disabled when RILOT_TRACING_ENABLED is unset")
	}
}

func TestConfigFromEnvReadsSampleRate(t *testing.T) {
	t.Setenv("RILOT_TRACING_SAMPLE_RATE", "0.25")
	cfg := ConfigFromEnv()
	if cfg.SampleRate != 0.25 {
		t.Fatalf("SampleRate = %v, want 0.25", cfg.SampleRate)
	}
}

func TestNewDisabledReturnsNoopTracer(t *testing.T) {
	tr, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.IsEnabled() {
		t.Fatal("expected disabled tracer")
	}
}

func TestMiddlewarePassesThroughWhenDisabled(t *testing.T) {
	tr, _ := New(Config{Enabled: false})

	var called bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	wrapped := tr.Middleware(inner)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if !called {
		t.Fatal("expected inner handler to be invoked")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStartSpanOnDisabledTracerIsSafe(t *testing.T) {
	tr, _ := New(Config{Enabled: false})

	ctx, span := tr.StartSpan(context.Background(), "wasm.invoke")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	span.End()
}

func TestCloseOnDisabledTracerIsSafe(t *testing.T) {
	tr, _ := New(Config{Enabled: false})
	if err := tr.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
