package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	SyncRuns        metric.Int64Counter
	PostsFetched    metric.Int64Counter
	PostsSkipped    metric.Int64Counter
	SyncItemErrors  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("foodmap-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	syncRuns, err := meter.Int64Counter(
		"sync.runs.total",
		metric.WithDescription("Sync runs started"),
	)
	if err != nil {
		return nil, err
	}

	postsFetched, err := meter.Int64Counter(
		"sync.posts.fetched",
		metric.WithDescription("New posts written by sync runs"),
	)
	if err != nil {
		return nil, err
	}

	postsSkipped, err := meter.Int64Counter(
		"sync.posts.skipped",
		metric.WithDescription("Already-known posts skipped by sync runs"),
	)
	if err != nil {
		return nil, err
	}

	syncItemErrors, err := meter.Int64Counter(
		"sync.items.failed",
		metric.WithDescription("Per-post failures inside sync runs"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		SyncRuns:        syncRuns,
		PostsFetched:    postsFetched,
		PostsSkipped:    postsSkipped,
		SyncItemErrors:  syncItemErrors,
	}, nil
}

// RecordRequest records one HTTP request outcome.
func (m *Metrics) RecordRequest(ctx context.Context, method, route, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("status", status),
	)
	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, seconds, attrs)
}

// RecordSyncRun records the aggregate counters of one finished sync run.
func (m *Metrics) RecordSyncRun(ctx context.Context, account string, fetched, skipped, failed int) {
	attrs := metric.WithAttributes(attribute.String("account", account))
	m.SyncRuns.Add(ctx, 1, attrs)
	m.PostsFetched.Add(ctx, int64(fetched), attrs)
	m.PostsSkipped.Add(ctx, int64(skipped), attrs)
	m.SyncItemErrors.Add(ctx, int64(failed), attrs)
}
