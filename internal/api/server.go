package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/promptvault/internal/batch"
	"github.com/MikeSquared-Agency/promptvault/internal/importer"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
)

// DefaultMaxUploadBytes bounds a whole multipart upload.
const DefaultMaxUploadBytes = 200 << 20

// Importer starts background imports.
type Importer interface {
	Start(ctx context.Context, req importer.Request) (string, error)
}

// Deps are the services the API exposes.
type Deps struct {
	Importer       Importer
	Tracker        *progress.Tracker
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Defaults       batch.Options
	MaxUploadBytes int64
}

type Server struct {
	router *chi.Mux
	port   int
	deps   Deps
	srv    *http.Server
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = DefaultMaxUploadBytes
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		deps:   deps,
	}

	router.Get("/health", s.health)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router.Route("/api/v1/imports", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Use(RequireUser)
		r.Post("/", s.createImport)
		r.Get("/{id}", s.getImport)
		r.Get("/{id}/stream", s.streamImport)
	})

	return s
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.deps.Logger.Info("API server starting", "addr", addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.deps.Tracker.Len(),
	})
}
