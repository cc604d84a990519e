// Package httpapi exposes the run service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/juanibiapina/testrun/internal/config"
	"github.com/juanibiapina/testrun/internal/logging"
	"github.com/juanibiapina/testrun/internal/service"
)

// NewRouter builds the HTTP handler for svc
func NewRouter(svc *service.Service, cfg config.ServerConfig) http.Handler {
	h := &Handlers{Service: svc}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(noStore)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/test-runs", func(r chi.Router) {
		r.Use(basicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))

		r.Post("/", h.StartRun)
		r.Get("/", h.ListRuns)
		r.Get("/{runID}", h.GetRun)
		r.Get("/{runID}/logs", h.GetLogs)
		r.Get("/{runID}/artifacts/*", h.GetArtifact)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", service.KindNotFound)
	})

	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	c := cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// Server runs the HTTP API until its context is cancelled
type Server struct {
	server *http.Server
}

// NewServer creates a server listening on cfg.Addr
func NewServer(svc *service.Service, cfg config.ServerConfig) *Server {
	return &Server{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(svc, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is done and then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Info("http server listening", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
