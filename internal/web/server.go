// Package web provides the HTTP API of the sync engine.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/config"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/web/middleware"
)

// errTooManyRequests is reported when a client exceeds its HTTP rate limit.
var errTooManyRequests = errors.New("too many requests")

// Server is the HTTP server of the sync engine.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Post("/webhooks/source-changed", s.handleSourceChanged)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		// Writes documents upstream; throttled more strictly.
		heavy := func(h http.HandlerFunc) http.Handler { return h }
		if s.cfg.Rate.Enabled {
			limit := s.rateLimit(s.cfg.Rate.GenerationLimit)
			heavy = func(h http.HandlerFunc) http.Handler { return limit(h) }
		}

		r.Get("/status", s.handleStatus)

		// Documents
		r.Get("/decks/{id}/placeholders", s.handlePlaceholders)
		r.Get("/sources/{id}", s.handleSourceData)
		r.Method(http.MethodPost, "/sources/{id}/edits", heavy(s.handleApplyEdits))
		r.Method(http.MethodPost, "/preview", heavy(s.handlePreview))
		r.Post("/diff", s.handleDiff)

		// Generation jobs
		r.Method(http.MethodPost, "/generations", heavy(s.handleCreateGeneration))
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Method(http.MethodPost, "/jobs/{id}/run", heavy(s.handleRunJob))
		r.Post("/jobs/{id}/cancel", s.handleCancelJob)
		r.Get("/jobs/{id}/outputs", s.handleJobOutputs)

		// Sync configurations
		r.Get("/sync-configs", s.handleListSyncConfigs)
		r.Post("/sync-configs", s.handleCreateSyncConfig)
		r.Get("/sync-configs/{id}", s.handleGetSyncConfig)
		r.Put("/sync-configs/{id}", s.handleUpdateSyncConfig)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// rateLimit returns per-client-IP throttling at perMinute requests.
func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	lim := limiter.New(memory.NewStore(), limiter.Rate{
		Period: time.Minute,
		Limit:  int64(perMinute),
	})
	mw := stdlib.NewMiddleware(lim,
		stdlib.WithKeyGetter(clientKey),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			s.respondError(w, r, errTooManyRequests)
		}),
	)
	return mw.Handler
}

// clientKey keys rate limits by the client IP left in RemoteAddr by
// TrustedRealIP.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON API: nothing may be loaded from responses
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		w.Header().Set("Referrer-Policy", "no-referrer")

		next.ServeHTTP(w, r)
	})
}
