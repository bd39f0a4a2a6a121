package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/erp/marketplace/internal/domain/integration"
)

// MeterName is the instrumentation scope of the marketplace metrics
const MeterName = "github.com/erp/marketplace"

// Metric attribute keys
var (
	AttrChannel   = attribute.Key("channel")
	AttrDirection = attribute.Key("direction")
	AttrTrigger   = attribute.Key("trigger")
	AttrStatus    = attribute.Key("status")
	AttrOutcome   = attribute.Key("outcome")
)

// SyncMetrics records sync pass and webhook delivery outcomes
type SyncMetrics struct {
	syncRuns     metric.Int64Counter
	syncDuration metric.Float64Histogram
	webhooks     metric.Int64Counter
}

// NewSyncMetrics registers the marketplace instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	syncRuns, err := meter.Int64Counter(
		"marketplace.sync.runs",
		metric.WithDescription("Sync passes by channel, direction, trigger and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter marketplace.sync.runs: %w", err)
	}

	syncDuration, err := meter.Float64Histogram(
		"marketplace.sync.duration",
		metric.WithDescription("Duration of sync passes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(SyncDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram marketplace.sync.duration: %w", err)
	}

	webhooks, err := meter.Int64Counter(
		"marketplace.webhook.deliveries",
		metric.WithDescription("Inbound webhook deliveries by channel and outcome"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter marketplace.webhook.deliveries: %w", err)
	}

	return &SyncMetrics{
		syncRuns:     syncRuns,
		syncDuration: syncDuration,
		webhooks:     webhooks,
	}, nil
}

// RecordSync counts one finished pass and its duration
func (m *SyncMetrics) RecordSync(
	ctx context.Context,
	channel string,
	direction integration.SyncDirection,
	trigger integration.SyncTrigger,
	status integration.SyncLogStatus,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		AttrChannel.String(channel),
		AttrDirection.String(direction.String()),
		AttrTrigger.String(trigger.String()),
		AttrStatus.String(status.String()),
	)
	m.syncRuns.Add(ctx, 1, attrs)
	m.syncDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordWebhook counts one inbound delivery
func (m *SyncMetrics) RecordWebhook(ctx context.Context, channel string, outcome string) {
	m.webhooks.Add(ctx, 1, metric.WithAttributes(
		AttrChannel.String(channel),
		AttrOutcome.String(outcome),
	))
}
