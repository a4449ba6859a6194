// Package admin serves the prompt management panel.
package admin

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server is the admin HTTP server
type Server struct {
	store     storage.Store
	templates *template.Template
	http      *http.Server
	logger    zerolog.Logger
}

// NewServer creates the admin server with its routes
func NewServer(config *models.BotConfig, store storage.Store, logger zerolog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin templates: %w", err)
	}

	s := &Server{
		store:     store,
		templates: tmpl,
		logger:    logger.With().Str("component", "admin").Logger(),
	}
	s.http = &http.Server{
		Addr:              config.AdminAddr,
		Handler:           s.routes(config.AdminUsername, config.AdminPassword),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) routes(username, password string) http.Handler {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(s.logger))
	r.Use(chimw.Recoverer)

	// Public routes
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	// Admin routes (HTTP basic auth, constant-time compare)
	r.Group(func(r chi.Router) {
		r.Use(chimw.BasicAuth("admin", map[string]string{username: password}))

		r.Get("/", s.listPrompts)
		r.Post("/admin/prompt/create", s.createPrompt)
		r.Get("/admin/prompt/edit/{id}", s.editPromptForm)
		r.Post("/admin/prompt/edit/{id}", s.updatePrompt)
		r.Post("/admin/prompt/delete/{id}", s.deletePrompt)
	})

	return r
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("Admin server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains active requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down admin server...")
	return s.http.Shutdown(ctx)
}
