package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/acectf/roster-sync/internal/api"
	"github.com/acectf/roster-sync/internal/api/admin"
	"github.com/acectf/roster-sync/internal/app/storage"
	"github.com/acectf/roster-sync/internal/auth"
	"github.com/acectf/roster-sync/internal/authz"
	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/httpclient"
	"github.com/acectf/roster-sync/internal/reconcile"
	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/roster"
	"github.com/acectf/roster-sync/internal/scorepush"
	"github.com/acectf/roster-sync/internal/sso"
	"github.com/acectf/roster-sync/internal/status"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
	"github.com/acectf/roster-sync/internal/sync/coordinator"
	"github.com/acectf/roster-sync/internal/telemetry"
	"github.com/acectf/roster-sync/internal/webhook"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// requestTimeoutSlack is added to the webhook wait so a waiting webhook still answers
	requestTimeoutSlack = 5 * time.Second
)

// tracerName is the instrumentation scope of the sync engines' spans
const tracerName = "github.com/acectf/roster-sync"

// RosterAppOptions is a function that configures the roster app builder
type RosterAppOptions func(*rosterAppConfig) error

// rosterAppConfig collects the builder inputs.
// It supports dependency injection for testing while providing sensible defaults for production.
type rosterAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	storageFactory storage.Factory
	client         registration.Client
	clock          clockwork.Clock

	// HTTP server options
	address     string
	middlewares []func(http.Handler) http.Handler
	readTimeout time.Duration
	idleTimeout time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...RosterAppOptions) (*rosterAppConfig, error) {
	cfg := &rosterAppConfig{
		address:     defaultHTTPAddress,
		readTimeout: defaultReadTimeout,
		idleTimeout: defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.clock == nil {
		cfg.clock = clockwork.NewRealClock()
	}

	return cfg, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithRegistrationClient allows injecting a registration client (for testing)
func WithRegistrationClient(c registration.Client) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.client = c
		return nil
	}
}

// WithClock sets the clock used by the scheduler, status tracking and sessions
func WithClock(clock clockwork.Clock) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.clock = clock
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for sync, webhook and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider
func WithTracerProvider(tp trace.TracerProvider) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes a Prometheus scrape handler at /metrics
func WithMetricsHandler(h http.Handler) RosterAppOptions {
	return func(cfg *rosterAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// NewSyncComponents builds the storage, registration client, engines, manager and scheduler.
// It is enough to run the sync jobs without serving HTTP.
func NewSyncComponents(ctx context.Context, opts ...RosterAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildSyncComponents(ctx, cfg)
}

// NewRosterApp builds the complete server
func NewRosterApp(ctx context.Context, opts ...RosterAppOptions) (*RosterApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildSyncComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync components: %w", err)
	}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			components.Close()
		}
	}()

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(ctx)
	cleanupNeeded = false

	return &RosterApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: func() {
			cancel()
			components.Close()
		},
	}, nil
}

func (b *rosterAppConfig) tracer() trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(tracerName)
}

// buildSyncComponents builds the sync manager, coordinator and everything they drive
func buildSyncComponents(ctx context.Context, b *rosterAppConfig) (*AppComponents, error) {
	slog.Info("Initializing sync components")

	c := &AppComponents{Storage: b.storageFactory}
	if c.Storage == nil {
		var err error
		c.Storage, err = storage.NewStorageFactory(ctx, b.config)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage factory: %w", err)
		}
	}

	c.Registration = b.client
	if c.Registration == nil {
		client, err := buildRegistrationClient(b)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Registration = client
	}

	backend := c.Storage.Backend()
	creds := roster.Credentials{TeamEmailDomain: b.config.Sync.GetTeamEmailDomain()}

	c.Teams = reconcile.New(c.Registration, backend, creds,
		reconcile.WithPartialNameMatch(b.config.Sync.AllowPartialNameMatch),
		reconcile.WithTracer(b.tracer()))
	c.Scores = scorepush.New(c.Registration, backend, scorepush.WithTracer(b.tracer()))

	managerOpts := []pkgsync.Option{pkgsync.WithLockTimeout(b.config.Sync.GetWebhookTimeout())}
	if b.meterProvider != nil {
		syncMetrics, err := telemetry.NewSyncMetrics(b.meterProvider)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create sync metrics: %w", err)
		}
		managerOpts = append(managerOpts, pkgsync.WithSyncMetrics(syncMetrics))
		slog.Info("Sync metrics enabled")
	}

	tracker := status.NewTracker(b.clock, pkgsync.JobTeamSync, pkgsync.JobScoreSync)
	c.SyncManager = pkgsync.NewManager(c.Teams, c.Scores, tracker, managerOpts...)
	c.SyncCoordinator = coordinator.New(c.SyncManager,
		coordinator.SchedulesFromConfig(&b.config.Sync),
		coordinator.WithClock(b.clock))

	slog.Info("Sync components initialized successfully")
	return c, nil
}

func buildRegistrationClient(b *rosterAppConfig) (*registration.APIClient, error) {
	password, err := b.config.Registration.GetPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to read registration password: %w", err)
	}
	return registration.NewClient(
		b.config.Registration.BaseURL,
		b.config.Registration.AdminEmail,
		password,
		registration.WithHTTPClient(httpclient.NewDefaultClient(b.config.Registration.GetTimeout())),
		registration.WithTracer(b.tracer()),
	), nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(_ context.Context, b *rosterAppConfig, c *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	webhookTimeout := b.config.Sync.GetWebhookTimeout()
	requestTimeout := max(defaultRequestTimeout, webhookTimeout+requestTimeoutSlack)

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(requestTimeout),
			api.LoggingMiddleware,
		}
	}

	if b.tracerProvider != nil {
		b.middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)}, b.middlewares...)
	}

	var webhookOpts []webhook.Option
	if b.meterProvider != nil {
		httpMetrics, err := telemetry.NewHTTPMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
		}
		// Prepend metrics middleware to capture all requests including those rejected by auth
		b.middlewares = append([]func(http.Handler) http.Handler{httpMetrics.Middleware}, b.middlewares...)

		webhookMetrics, err := telemetry.NewWebhookMetrics(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create webhook metrics: %w", err)
		}
		webhookOpts = append(webhookOpts, webhook.WithMetrics(webhookMetrics))
		slog.Info("HTTP metrics middleware enabled")
	}
	webhookOpts = append(webhookOpts, webhook.WithTracer(b.tracer()))

	webhookSecret, err := b.config.Webhook.GetSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}
	webhookHandler := webhook.NewHandler([]byte(webhookSecret), c.SyncManager, c.Teams, c.Registration, webhookOpts...)

	ssoHandler, sessions, err := buildSSO(b, c)
	if err != nil {
		return nil, err
	}

	adminRoutes := admin.NewRoutes(c.SyncManager, c.Registration, c.Scores, b.config.Registration.BaseURL)
	authorizer, err := buildAuthorizer(b.config.Authz)
	if err != nil {
		return nil, err
	}

	router := api.NewServer(c.Storage.Backend(),
		api.WithMiddlewares(b.middlewares...),
		api.WithWebhook(webhookHandler),
		api.WithSSO(ssoHandler),
		api.WithAdmin(adminRoutes.Router(),
			auth.NewSessionMiddleware(sessions).Middleware,
			authz.Middleware(authorizer, b.config.Authz.GetRoles()),
		),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: requestTimeout + requestTimeoutSlack,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address, "request_timeout", requestTimeout)
	return server, nil
}

func buildAuthorizer(cfg *config.AuthzConfig) (authz.Authorizer, error) {
	policies, err := cfg.GetPolicies()
	if err != nil {
		return nil, fmt.Errorf("failed to read authorization policies: %w", err)
	}
	authorizer, err := authz.NewCedarAuthorizer(policies)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer: %w", err)
	}
	if policies != nil {
		slog.Info("Loaded custom authorization policies", "path", cfg.PolicyFile)
	}
	return authorizer, nil
}

func buildSSO(b *rosterAppConfig, c *AppComponents) (http.Handler, *sso.Sessions, error) {
	jwtSecret, err := b.config.SSO.GetJWTSecret()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read SSO token secret: %w", err)
	}
	sessionSecret, err := b.config.SSO.GetSessionSecret()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read session secret: %w", err)
	}

	sessions := sso.NewSessions([]byte(sessionSecret), b.config.SSO.GetSessionTTL(), b.clock)
	bridge := sso.NewBridge(
		sso.NewIdentityVerifier([]byte(jwtSecret), b.clock),
		sessions,
		c.Storage.Backend(),
		roster.Credentials{TeamEmailDomain: b.config.Sync.GetTeamEmailDomain()},
	)
	handler := sso.WithCORS(sso.NewHandler(bridge, b.config.SSO.PublicURL), b.config.SSO.AllowedOrigins)
	return handler, sessions, nil
}
