package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the sync and webhook metrics
const MeterName = "github.com/acectf/roster-sync"

// Webhook outcomes recorded by WebhookMetrics
const (
	OutcomeHandled    = "handled"
	OutcomeDispatched = "dispatched"
	OutcomeRejected   = "rejected"
	OutcomeNotFound   = "not_found"
	OutcomeFailed     = "failed"
)

// SyncMetrics holds the instruments for scheduled and manual sync jobs
type SyncMetrics struct {
	jobDuration metric.Float64Histogram
	jobsSkipped metric.Int64Counter
	teamErrors  metric.Int64Counter
}

// NewSyncMetrics creates sync instruments. A nil provider yields nil, which records nothing.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(MeterName)

	jobDuration, err := meter.Float64Histogram(
		"roster_sync_job_duration_seconds",
		metric.WithDescription("Duration of sync job runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	jobsSkipped, err := meter.Int64Counter(
		"roster_sync_job_skipped_total",
		metric.WithDescription("Sync triggers dropped because the job was already running"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	teamErrors, err := meter.Int64Counter(
		"roster_sync_team_errors_total",
		metric.WithDescription("Teams that failed to reconcile"),
		metric.WithUnit("{team}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{jobDuration: jobDuration, jobsSkipped: jobsSkipped, teamErrors: teamErrors}, nil
}

// RecordJobDuration records one finished run of job
func (m *SyncMetrics) RecordJobDuration(ctx context.Context, job string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("job", job),
		attribute.Bool("success", success),
	))
}

// RecordSkipped counts a trigger dropped while job was running
func (m *SyncMetrics) RecordSkipped(ctx context.Context, job string) {
	if m == nil {
		return
	}
	m.jobsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("job", job)))
}

// RecordTeamErrors adds the per-team failures of one reconciliation pass
func (m *SyncMetrics) RecordTeamErrors(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.teamErrors.Add(ctx, int64(count))
}

// WebhookMetrics holds the instruments for inbound notifications
type WebhookMetrics struct {
	events metric.Int64Counter
}

// NewWebhookMetrics creates webhook instruments. A nil provider yields nil.
func NewWebhookMetrics(provider metric.MeterProvider) (*WebhookMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	events, err := provider.Meter(MeterName).Int64Counter(
		"roster_sync_webhook_events_total",
		metric.WithDescription("Webhook notifications received, by event and outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &WebhookMetrics{events: events}, nil
}

// RecordEvent counts one notification
func (m *WebhookMetrics) RecordEvent(ctx context.Context, event, outcome string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("outcome", outcome),
	))
}
