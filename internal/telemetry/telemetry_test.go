package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNewDisabled(t *testing.T) {
	t.Parallel()

	for _, cfg := range []*Config{nil, {Enabled: false}, {Enabled: true}} {
		tel, err := New(context.Background(), cfg)
		require.NoError(t, err)
		assert.IsType(t, tracenoop.TracerProvider{}, tel.TracerProvider())
		assert.IsType(t, metricnoop.MeterProvider{}, tel.MeterProvider())
		assert.Nil(t, tel.MetricsHandler())
		require.NoError(t, tel.Shutdown(context.Background()))
	}
}

func TestNewInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &Config{
		Enabled: true,
		Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampling")
}

func TestPrometheusExposition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tel, err := New(ctx, &Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true, Prometheus: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	handler := tel.MetricsHandler()
	require.NotNil(t, handler)

	syncMetrics, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	syncMetrics.RecordJobDuration(ctx, "team-sync", 250*time.Millisecond, true)

	webhookMetrics, err := NewWebhookMetrics(tel.MeterProvider())
	require.NoError(t, err)
	webhookMetrics.RecordEvent(ctx, "team.deleted", OutcomeHandled)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "roster_sync_job_duration_seconds_bucket")
	assert.Contains(t, string(body), `job="team-sync"`)
	assert.Contains(t, string(body), "roster_sync_webhook_events_total")
	assert.Contains(t, string(body), `event="team.deleted"`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestConfigAccessors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cfg            *Config
		wantMetrics    bool
		wantPrometheus bool
		wantOTLP       bool
	}{
		{name: "nil", cfg: nil},
		{name: "disabled", cfg: &Config{Metrics: &MetricsConfig{Enabled: true}}},
		{
			name:        "otlp only",
			cfg:         &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}},
			wantMetrics: true,
			wantOTLP:    true,
		},
		{
			name:           "prometheus only",
			cfg:            &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Prometheus: true}},
			wantMetrics:    true,
			wantPrometheus: true,
		},
		{
			name: "prometheus with collector",
			cfg: &Config{
				Enabled:  true,
				Endpoint: "otel:4318",
				Metrics:  &MetricsConfig{Enabled: true, Prometheus: true},
			},
			wantMetrics:    true,
			wantPrometheus: true,
			wantOTLP:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantMetrics, tt.cfg.MetricsEnabled())
			assert.Equal(t, tt.wantPrometheus, tt.cfg.PrometheusEnabled())
			assert.Equal(t, tt.wantOTLP, tt.cfg.otlpMetricsEnabled())
		})
	}

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, "unknown", cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
	assert.InDelta(t, DefaultSampling, (&TracingConfig{}).GetSampling(), 0)
}
