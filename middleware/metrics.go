package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/gaborage/go-kintone/middleware"

	metricRequests = "kintone.client.requests"
	metricDuration = "kintone.client.request.duration"
	metricInFlight = "kintone.client.requests.in_flight"
)

// MetricsLayer records request counts, durations and in-flight calls.
type MetricsLayer struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
	now      func() time.Time
}

// NewMetricsLayer creates a metrics layer. A nil provider uses the global one.
func NewMetricsLayer(mp metric.MeterProvider) (*MetricsLayer, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	requests, err := meter.Int64Counter(metricRequests,
		metric.WithDescription("Number of kintone API calls by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(metricDuration,
		metric.WithDescription("Duration of kintone API calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter(metricInFlight,
		metric.WithDescription("kintone API calls currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsLayer{
		requests: requests,
		duration: duration,
		inFlight: inFlight,
		now:      time.Now,
	}, nil
}

// Wrap implements Layer
func (l *MetricsLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		base := []attribute.KeyValue{
			attribute.String("kintone.operation", req.Operation()),
			attribute.String("http.request.method", req.Method()),
		}
		l.inFlight.Add(ctx, 1, metric.WithAttributes(base...))
		start := l.now()

		resp, err := next.Do(ctx, req)

		l.inFlight.Add(ctx, -1, metric.WithAttributes(base...))
		out := OutcomeOf(resp, err)
		attrs := append(base,
			attribute.String("kintone.outcome", out.Kind.String()),
			attribute.Int("http.response.status_code", out.Status),
		)
		l.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
		l.duration.Record(ctx, l.now().Sub(start).Seconds(), metric.WithAttributes(attrs...))
		return resp, err
	})
}
