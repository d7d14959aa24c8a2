// Package api provides the HTTP server of roster-sync.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/acectf/roster-sync/internal/api/health"
)

// Route paths
const (
	WebhookPath = "/webhooks/registration"
	SSOPath     = "/sso/authenticate"
	AdminPrefix = "/admin"
	MetricsPath = "/metrics"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	admin       http.Handler
	adminGuards []func(http.Handler) http.Handler
	webhook     http.Handler
	sso         http.Handler
	metrics     http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithAdmin mounts the admin routes behind guards, applied in order
func WithAdmin(routes http.Handler, guards ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.admin = routes
		cfg.adminGuards = guards
	}
}

// WithWebhook mounts the registration webhook receiver
func WithWebhook(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.webhook = h
	}
}

// WithSSO mounts the session bridge
func WithSSO(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.sso = h
	}
}

// WithMetricsHandler exposes h at /metrics. A nil handler is ignored.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metrics = h
	}
}

// NewServer creates and configures the HTTP router
func NewServer(store health.Pinger, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Mount("/", health.Router(store))

	if cfg.metrics != nil {
		r.Method(http.MethodGet, MetricsPath, cfg.metrics)
	}
	if cfg.webhook != nil {
		r.Method(http.MethodPost, WebhookPath, cfg.webhook)
	}
	if cfg.sso != nil {
		// OPTIONS reaches the handler so CORS preflight can be answered
		r.Method(http.MethodPost, SSOPath, cfg.sso)
		r.Method(http.MethodOptions, SSOPath, cfg.sso)
	}
	if cfg.admin != nil {
		r.Group(func(r chi.Router) {
			r.Use(cfg.adminGuards...)
			r.Mount(AdminPrefix, cfg.admin)
		})
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
