// Package server binds the proxy's HTTP listener (and, optionally, a
// separate admin/metrics listener) and runs them until the process is
// signalled to stop.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rilot/proxy/internal/logging"
	"github.com/rilot/proxy/internal/metrics"
)

// Config controls where the front listener (and the optional admin
// listener) bind.
type Config struct {
	Addr      string
	AdminAddr string // empty disables the admin listener
}

// Server owns the proxy's front HTTP listener and an optional admin
// listener exposing /metrics and /healthz.
type Server struct {
	cfg    Config
	main   *http.Server
	admin  *http.Server
}

// New builds a Server that dispatches accepted connections to handler.
func New(cfg Config, handler http.Handler) *Server {
	s := &Server{
		cfg: cfg,
		main: &http.Server{
			Addr:    cfg.Addr,
			Handler: handler,
		},
	}
	if cfg.AdminAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		})
		s.admin = &http.Server{Addr: cfg.AdminAddr, Handler: mux}
	}
	return s
}

// Run binds and serves until a SIGINT/SIGTERM is received, then shuts
// down both listeners gracefully. It returns the first fatal error
// encountered (a bind failure), or nil on a clean shutdown.
func (s *Server) Run() error {
	errs := make(chan error, 2)

	go func() {
		logging.Info("proxy listening", zap.String("addr", s.cfg.Addr))
		if err := s.main.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
			return
		}
		errs <- nil
	}()

	if s.admin != nil {
		go func() {
			logging.Info("admin listener starting", zap.String("addr", s.cfg.AdminAddr))
			if err := s.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- err
				return
			}
			errs <- nil
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
		logging.Info("shutdown signal received")
		return s.shutdown()
	case err := <-errs:
		if err != nil {
			return err
		}
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.main.Shutdown(ctx)
	if s.admin != nil {
		if adminErr := s.admin.Shutdown(ctx); adminErr != nil && err == nil {
			err = adminErr
		}
	}
	return err
}
