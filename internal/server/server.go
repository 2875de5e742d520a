// Package server exposes the configuration, discovery and secret retrieval
// HTTP API
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/ylchen07/keyvault-identity-demo/internal/config"
	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/internal/logging"
	"github.com/ylchen07/keyvault-identity-demo/internal/metrics"
	"github.com/ylchen07/keyvault-identity-demo/internal/runtimeconfig"
	"github.com/ylchen07/keyvault-identity-demo/internal/secrets"
)

// Server wires the runtime state, the retriever and the discoverer to HTTP
type Server struct {
	cfg        config.ServerConfig
	state      *runtimeconfig.State
	retriever  *secrets.Retriever
	discoverer *discovery.Discoverer
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a Server. All dependencies are required except m
func New(cfg config.ServerConfig, state *runtimeconfig.State, r *secrets.Retriever, d *discovery.Discoverer, m *metrics.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		state:      state,
		retriever:  r,
		discoverer: d,
		metrics:    m,
		now:        time.Now,
	}
}

// Handler returns the routed handler wrapped in request logging
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	// Full paths on the root router so a method mismatch answers 405
	r.HandleFunc("/api/config/current", s.handleCurrentConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/config/credential-mode", s.handleCredentialMode).Methods(http.MethodPost)
	r.HandleFunc("/api/config/apply", s.handleApply).Methods(http.MethodPost)
	r.HandleFunc("/api/config/discover", s.handleDiscover).Methods(http.MethodGet)

	r.HandleFunc("/api/secrets/retrieve", s.handleRetrieve).Methods(http.MethodPost)
	r.HandleFunc("/api/secrets/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/secrets/config", s.handleCurrentConfig).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.Handle("/", http.RedirectHandler("/index.html", http.StatusFound)).Methods(http.MethodGet)
	if s.cfg.WebRoot != "" {
		if info, err := os.Stat(s.cfg.WebRoot); err == nil && info.IsDir() {
			r.PathPrefix("/").MatcherFunc(notAPI).Handler(http.FileServer(http.Dir(s.cfg.WebRoot)))
		} else {
			log.WithField("webRoot", s.cfg.WebRoot).Debug("Web root not found, static files disabled")
		}
	}

	return logging.Middleware(r)
}

func notAPI(r *http.Request, _ *mux.RouteMatch) bool {
	return !strings.HasPrefix(r.URL.Path, "/api/")
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully. Open event streams see their request context cancelled
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Address, err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.WithField("address", listener.Addr().String()).Info("HTTP server listening")

	serveDone := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		log.Info("HTTP server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	log.Info("HTTP server stopped")
	return nil
}
