// Command rilot runs the programmable reverse proxy: it loads a static
// routing config, stands up the Wasm override engine, and serves
// requests until terminated.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/rilot/proxy/internal/config"
	"github.com/rilot/proxy/internal/logging"
	"github.com/rilot/proxy/internal/pipeline"
	"github.com/rilot/proxy/internal/proxy"
	"github.com/rilot/proxy/internal/router"
	"github.com/rilot/proxy/internal/server"
	"github.com/rilot/proxy/internal/ssrf"
	"github.com/rilot/proxy/internal/tracing"
	"github.com/rilot/proxy/internal/wasmengine"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := "./config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	logCfg := logging.ConfigFromEnv()
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rilot: failed to initialize logger: %v\n", err)
		return 1
	}
	if closer != nil {
		defer closer.Close()
	}
	logging.SetGlobal(logger)
	defer logging.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Error("failed to load configuration", zap.String("path", configPath), zap.Error(err))
		return 1
	}

	ctx := context.Background()
	engine, err := wasmengine.New(ctx)
	if err != nil {
		logging.Error("failed to initialize wasm engine", zap.Error(err))
		return 1
	}
	defer engine.Close(ctx)

	tracer, err := tracing.New(tracing.ConfigFromEnv())
	if err != nil {
		logging.Error("failed to initialize tracer", zap.Error(err))
		return 1
	}
	defer tracer.Close(ctx)

	transport, err := proxy.NewTransport(withSSRFProtection(proxy.DefaultTransportConfig))
	if err != nil {
		logging.Error("failed to build upstream transport", zap.Error(err))
		return 1
	}

	p := pipeline.New(router.New(cfg), engine, &http.Client{Transport: transport}, tracer)
	handler := tracer.Middleware(p)

	host := envOr("RILOT_HOST", "127.0.0.1")
	port := envOr("RILOT_PORT", "8080")

	srv := server.New(server.Config{
		Addr:      host + ":" + port,
		AdminAddr: os.Getenv("RILOT_METRICS_ADDR"),
	}, handler)

	logging.Info("rilot proxy starting",
		zap.String("config", configPath),
		zap.Int("routes", len(cfg.Proxies)))

	if err := srv.Run(); err != nil {
		logging.Error("server exited with error", zap.Error(err))
		return 1
	}
	return 0
}

func withSSRFProtection(cfg proxy.TransportConfig) proxy.TransportConfig {
	cfg.SSRFProtection = &ssrf.Config{}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
