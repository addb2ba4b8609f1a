package session

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/openkcm/pkce-session/pkg/session"

type metrics struct {
	exchanges metric.Int64Counter
	duration  metric.Int64Histogram
	readiness metric.Int64Counter
}

func defaultMeter() metric.Meter {
	return otel.Meter(instrumentationName, metric.WithInstrumentationVersion(otel.Version()))
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	exchanges, err := meter.Int64Counter(
		"session.token_exchange_count",
		metric.WithDescription("Token endpoint requests"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating token_exchange_count meter: %w", err)
	}

	duration, err := meter.Int64Histogram(
		"session.token_exchange_duration",
		metric.WithDescription("Token endpoint round trip"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating token_exchange_duration meter: %w", err)
	}

	readiness, err := meter.Int64Counter(
		"session.readiness_changes",
		metric.WithDescription("Readiness signal transitions"),
		metric.WithUnit("change"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating readiness_changes meter: %w", err)
	}

	return &metrics{
		exchanges: exchanges,
		duration:  duration,
		readiness: readiness,
	}, nil
}

func (m *metrics) recordExchange(ctx context.Context, grant string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("grant", grant),
		attribute.String("outcome", outcome),
	)

	m.exchanges.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Milliseconds(), attrs)
}

func (m *metrics) recordReadiness(ctx context.Context, ok bool) {
	m.readiness.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
}
