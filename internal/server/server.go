package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/ziadkadry99/hygaudit/internal/activity"
	"github.com/ziadkadry99/hygaudit/internal/auditor"
	"github.com/ziadkadry99/hygaudit/internal/audits"
	"github.com/ziadkadry99/hygaudit/internal/checklist"
	"github.com/ziadkadry99/hygaudit/internal/db"
	"github.com/ziadkadry99/hygaudit/internal/events"
	"github.com/ziadkadry99/hygaudit/internal/generation"
	"github.com/ziadkadry99/hygaudit/internal/notifications"
	"github.com/ziadkadry99/hygaudit/internal/render"
)

// Config holds server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Deps are the feature stores and services the server exposes.
type Deps struct {
	DB            *db.DB
	Audits        *audits.Service
	Checklists    *checklist.Store
	Auditors      *auditor.Store
	Activity      *activity.Store
	Notifications *notifications.Store
	Dispatcher    *notifications.Dispatcher
	Hub           *events.Hub
	Jobs          *generation.Controller
	Renderer      *render.Renderer
	Logger        zerolog.Logger
}

// Server is the hygiene audit HTTP server.
type Server struct {
	cfg        Config
	deps       Deps
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with every feature route registered.
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With().Str("component", "server").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", audits.ActorHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	// The websocket feed is long-lived and stays outside the request timeout.
	if s.deps.Hub != nil {
		events.RegisterRoutes(r, s.deps.Hub)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		if s.deps.Audits != nil {
			audits.RegisterRoutes(r, s.deps.Audits, s.deps.Renderer)
		}
		if s.deps.Checklists != nil {
			checklist.RegisterRoutes(r, s.deps.Checklists)
		}
		if s.deps.Auditors != nil {
			auditor.RegisterRoutes(r, s.deps.Auditors)
		}
		if s.deps.Activity != nil {
			activity.RegisterRoutes(r, s.deps.Activity)
		}
		if s.deps.Notifications != nil {
			notifications.RegisterRoutes(r, s.deps.Notifications, s.deps.Dispatcher)
		}
	})

	return r
}

// requestLogger logs one line per request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["error"] = err.Error()
		}
	}
	if s.deps.Jobs != nil {
		body["generating"] = s.deps.Jobs.Running()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Router returns the chi router for registering additional routes.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("hygaudit server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, then waits for in-flight generation
// jobs so their outcome is persisted before the database closes.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.deps.Jobs != nil {
		s.deps.Jobs.Shutdown(ctx)
	}
	return err
}
