package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensource-finance/casewatch/internal/auth"
	"github.com/opensource-finance/casewatch/internal/complaint"
	"github.com/opensource-finance/casewatch/internal/dashboard"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/lifecycle"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotificationLister reads the notifications sent for a complaint.
type NotificationLister interface {
	ListNotifications(ctx context.Context, complaintID string) ([]*domain.Notification, error)
}

// Deps are the services the API serves.
type Deps struct {
	Complaints    *complaint.Service
	Lifecycle     *lifecycle.Manager
	Dashboard     *dashboard.Service
	Auth          *auth.Service
	Notifications NotificationLister
	Live          http.Handler

	// Health checks
	Repo  Pinger
	Cache Pinger
	Bus   Pinger
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	// Probes and metrics
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	// Public victim endpoints
	router.Get("/statuses", handler.ListStatuses)
	router.Post("/complaints", handler.SubmitComplaint)
	router.Post("/complaints/track", handler.TrackComplaint)
	router.Post("/auth/login", handler.Login)

	// Officer endpoints
	router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(deps.Auth))
		r.Use(RequireRole(domain.RoleOfficer))

		r.Get("/complaints", handler.ListComplaints)
		r.Get("/complaints/{id}", handler.GetComplaint)
		r.Get("/complaints/{id}/updates", handler.ListCaseUpdates)
		r.Get("/complaints/{id}/notifications", handler.ListNotifications)
		r.Post("/complaints/{id}/transitions", handler.Transition)
		r.Get("/dashboard/stats", handler.DashboardStats)
		r.Get("/auth/session", handler.CurrentSession)
		if deps.Live != nil {
			r.Get("/live", deps.Live.ServeHTTP)
		}

		r.With(RequireRole(domain.RoleAdmin)).Post("/officers", handler.CreateOfficer)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
