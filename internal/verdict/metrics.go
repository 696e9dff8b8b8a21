package verdict

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const verdictInstrumentationName = "github.com/fyrsmithlabs/complianced/internal/verdict"

// Metrics holds synthesis-related metrics.
type Metrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	duration metric.Float64Histogram
	attempts metric.Int64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates a new Metrics instance for verdict synthesis.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(verdictInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"complianced.synthesis.duration_seconds",
		metric.WithDescription("End-to-end duration of verdict synthesis including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.attempts, err = m.meter.Int64Histogram(
		"complianced.synthesis.attempts",
		metric.WithDescription("Generation attempts consumed per synthesis, including the successful one"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5),
	)
	if err != nil {
		m.logger.Warn("failed to create attempts histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"complianced.synthesis.errors_total",
		metric.WithDescription("Syntheses that exhausted retries or were canceled"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordSynthesis records one synthesis outcome.
func (m *Metrics) RecordSynthesis(ctx context.Context, attempts int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
	}

	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if m.attempts != nil {
		m.attempts.Record(ctx, int64(attempts), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
