// Package server provides the HTTP server and routing for Playbook.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/config"
	"github.com/aristath/playbook/internal/database"
	"github.com/aristath/playbook/internal/modules/alerts"
	"github.com/aristath/playbook/internal/modules/cards"
	"github.com/aristath/playbook/internal/modules/discovery"
	"github.com/aristath/playbook/internal/modules/portfolio"
	"github.com/aristath/playbook/internal/modules/triggers"
	"github.com/aristath/playbook/internal/modules/universe"
)

// Handlers bundles the per-module HTTP handlers mounted by the router.
type Handlers struct {
	Universe  *universe.Handlers
	Cards     *cards.Handlers
	Triggers  *triggers.Handlers
	Alerts    *alerts.Handlers
	Discovery *discovery.Handlers
	Portfolio *portfolio.Handlers
	System    *SystemHandlers
}

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Databases []*database.DB
	Handlers  Handlers
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    Config
	log    zerolog.Logger
}

// New creates the server, wiring middleware and all module routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Config.Port),
		Handler: s.router,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	h := s.cfg.Handlers

	// Health check outside /api for load balancers.
	s.router.Get("/health", h.System.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/universe", func(r chi.Router) {
			r.Get("/instruments", h.Universe.HandleListInstruments)
			r.Post("/instruments", h.Universe.HandleUpsertInstrument)
			r.Get("/instruments/{symbol}", h.Universe.HandleGetInstrument)
			r.Get("/snapshot", h.Universe.HandleSnapshotStatus)
			r.Post("/rebuild", h.Universe.HandleRebuildSnapshot)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", h.Cards.HandleListCards)
			r.Post("/", h.Cards.HandleSaveCard)
			r.Get("/{id}", h.Cards.HandleGetCard)
			r.Get("/{id}/similar", h.Discovery.HandleFindSimilar)
			r.Get("/{id}/triggers", h.Triggers.HandleListRules)
		})

		r.Route("/triggers", func(r chi.Router) {
			r.Post("/", h.Triggers.HandleCreateRule)
			r.Post("/run", h.Triggers.HandleRunNow)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.Alerts.HandleListAlerts)
			r.Post("/enable/{card_id}", h.Cards.HandleEnableAlerts)
			r.Post("/disable/{card_id}", h.Cards.HandleDisableAlerts)
		})

		r.Post("/events", h.Triggers.HandleManualEvent)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/positions", h.Portfolio.HandleListPositions)
			r.Post("/positions", h.Portfolio.HandleOpenPosition)
			r.Post("/positions/{id}/close", h.Portfolio.HandleClosePosition)
			r.Get("/stats", h.Portfolio.HandleGetStats)
		})

		r.Get("/system/status", h.System.HandleSystemStatus)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Config.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
