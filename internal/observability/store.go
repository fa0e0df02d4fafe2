package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"adgate/internal/ratelimit"
)

// InstrumentedStore wraps a ratelimit.CounterStore with OpenTelemetry
// tracing and metrics instrumentation. Every store call records a span, an
// operation latency histogram sample, and an error counter increment on
// failure.
type InstrumentedStore struct {
	inner    ratelimit.CounterStore
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStore creates the instrumented wrapper.
func NewInstrumentedStore(inner ratelimit.CounterStore) (*InstrumentedStore, error) {
	tracer := otel.Tracer("adgate/ratelimit")
	meter := otel.Meter("adgate/ratelimit")

	duration, err := meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of counter store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Number of counter store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "store."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("store.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStore) Increment(ctx context.Context, identity string, windowStart int64, ttl time.Duration) (int64, error) {
	ctx, span := s.startSpan(ctx, "Increment", attribute.Int64("window_start", windowStart))
	start := time.Now()
	count, err := s.inner.Increment(ctx, identity, windowStart, ttl)
	s.record(ctx, span, "Increment", start, err)
	return count, err
}

func (s *InstrumentedStore) GetBlock(ctx context.Context, identity string) (time.Time, bool, error) {
	ctx, span := s.startSpan(ctx, "GetBlock")
	start := time.Now()
	until, blocked, err := s.inner.GetBlock(ctx, identity)
	s.record(ctx, span, "GetBlock", start, err)
	return until, blocked, err
}

func (s *InstrumentedStore) SetBlock(ctx context.Context, identity string, until time.Time, ttl time.Duration) error {
	ctx, span := s.startSpan(ctx, "SetBlock")
	start := time.Now()
	err := s.inner.SetBlock(ctx, identity, until, ttl)
	s.record(ctx, span, "SetBlock", start, err)
	return err
}

func (s *InstrumentedStore) ClearBlock(ctx context.Context, identity string) error {
	ctx, span := s.startSpan(ctx, "ClearBlock")
	start := time.Now()
	err := s.inner.ClearBlock(ctx, identity)
	s.record(ctx, span, "ClearBlock", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
