// Package http serves the dashboard page, its htmx partials, the JSON
// snapshot and the operational endpoints.
package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"txdash/internal/log"
	"txdash/internal/middleware/ratelimit"
	"txdash/internal/middleware/security"
	"txdash/internal/middleware/trace"
	"txdash/internal/session"
	appweb "txdash/web"
)

// ReadinessCheck reports whether an optional dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	templates *template.Template
	sessions  *session.Registry
	logger    *log.Logger

	// Middleware components
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	fetchMetrics *FetchMetrics
	readiness    map[string]ReadinessCheck
	rateConfig   ratelimit.Config
	startedAt    time.Time

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithFetchMetrics exposes the fetch counters on /metrics. The same value
// must be registered as an observer on every controller.
func WithFetchMetrics(m *FetchMetrics) Option {
	return func(s *Server) { s.fetchMetrics = m }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.readiness[name] = check }
}

// WithRateLimit sets the per-client limit applied to dashboard events.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) { s.rateConfig = cfg }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, sessions *session.Registry, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		sessions:   sessions,
		logger:     log.Discard(),
		readiness:  make(map[string]ReadinessCheck),
		rateConfig: ratelimit.DefaultConfig(),
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetchMetrics == nil {
		s.fetchMetrics = NewFetchMetrics()
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)

	s.securityDetector = security.NewDetector(s.logger)
	s.traceMiddleware = trace.NewMiddleware(s.logger, s.securityDetector.ExtractClientIP)
	s.rateLimiter = ratelimit.NewLimiter(s.rateConfig)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.WithComponent(log.ComponentTemplate).Error("Failed parsing templates",
			log.FieldError, err,
			"error_type", log.ErrorTypeConfiguration)
	}
	s.templates = t

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DashboardHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)

		r.Get("/", s.handleIndex)
		r.Get("/ui/view", s.handleView)
		r.Get("/api/dashboard", s.handleDashboardJSON)

		// Every event below may start a remote fetch.
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))

			r.Post("/ui/filter", s.handleFilterChange)
			r.Post("/ui/search", s.handleSearch)
			r.Post("/ui/page", s.handlePageChange)
			r.Post("/ui/retry", s.handleRetry)
		})
	})

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server. Sessions are
// owned by the caller and closed separately.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// renderTemplate executes name into a buffer so a failing template never
// leaves a half-written response. fallback is sent instead on error.
func (s *Server) renderTemplate(ctx context.Context, name string, data any, fallback string) (string, bool) {
	if s.templates == nil {
		s.logger.ErrorContext(ctx, "Templates not loaded",
			"template", name,
			"error_type", log.ErrorTypeConfiguration)
		return fallback, false
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		fields := log.NewFields()
		fields["template"] = name
		log.NewStructuredLogger(s.logger).LogError(ctx, "Template execution failed", err,
			log.ComponentTemplate, log.OpRender, fields)
		return fallback, false
	}
	return buf.String(), true
}
