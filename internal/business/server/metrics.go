package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/pkce-session/internal/middleware/responsewriter"
)

const operationCallback = "callback"

type meters struct {
	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func initMeters(ctx context.Context, app commoncfg.Application) (*meters, error) {
	meter := otel.Meter(
		"pkce-session/"+app.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(app)...),
	)

	counter, err := meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming callback request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return nil, oops.In("Callback Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err := meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming callback end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, oops.In("Callback Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return &meters{counter: counter, hist: hist}, nil
}

// traceMiddleware covers the callback handler with tracing, metrics and a
// request id in the log context.
func (m *meters) traceMiddleware(app commoncfg.Application, next http.Handler) http.Handler {
	traceAttrs := otlp.CreateAttributesFrom(app, attribute.String(commoncfg.AttrOperation, operationCallback))
	tracer := otel.Tracer(operationCallback, trace.WithInstrumentationAttributes(traceAttrs...))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogctx.With(r.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operationCallback,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx, operationCallback+"-span", trace.WithAttributes(traceAttrs...))
		defer span.End()

		requestStartTime := time.Now()

		defer func() {
			elapsedTime := time.Since(requestStartTime)
			status := responseStatus(ctx)

			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(app,
					attribute.String(commoncfg.AttrOperation, operationCallback),
					attribute.Int("status", status),
				)...,
			)

			m.counter.Add(ctx, 1, attrs)
			m.hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
		}()

		slogctx.Debug(ctx, "Processing callback request", "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
		slogctx.Debug(ctx, "Finished callback request", "status", responseStatus(ctx))
	})
}

func responseStatus(ctx context.Context) int {
	rw, err := responsewriter.ResponseWriterFromContext(ctx)
	if err != nil || !rw.Written() {
		return http.StatusOK
	}

	return rw.Status()
}
