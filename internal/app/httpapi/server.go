// Package httpapi is the administrative HTTP surface of the audit
// chain: appending events, triggering integrity verification, and
// health. It is a protected operator endpoint, not a public API.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chainproof-io/chainproof/internal/chain"
	"github.com/chainproof-io/chainproof/internal/domain"
	"github.com/chainproof-io/chainproof/internal/infra/config"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewRouter wires the admin routes. Split out from New so tests can
// exercise the full middleware stack without a listener.
func NewRouter(cfg *config.Config, appender *chain.Appender, verifier *chain.Verifier, store domain.ChainStore, logger *slog.Logger) chi.Router {
	h := &handler{
		appender: appender,
		verifier: verifier,
		store:    store,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(logger))

	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		if cfg.Server.AuthToken != "" {
			r.Use(bearerAuth(cfg.Server.AuthToken))
		}
		r.Post("/v1/events", h.handleAppend)
		r.Get("/v1/integrity", h.handleVerify)
	})

	return r
}

func New(cfg *config.Config, appender *chain.Appender, verifier *chain.Verifier, store domain.ChainStore, logger *slog.Logger) *Server {
	r := NewRouter(cfg, appender, verifier, store, logger)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("admin api listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
