package middleware

import (
	"context"
	nethttp "net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/gaborage/go-kintone/middleware"

// TracingLayer opens a client span per call and propagates the trace
// context through request headers.
type TracingLayer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingLayer creates a tracing layer. A nil provider uses the global one.
func NewTracingLayer(tp trace.TracerProvider) *TracingLayer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingLayer{
		tracer:     tp.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
	}
}

// Wrap implements Layer
func (l *TracingLayer) Wrap(next Service) Service {
	return ServiceFunc(func(ctx context.Context, req *Request) (*Response, error) {
		ctx, span := l.tracer.Start(ctx, spanName(req),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(req.Method()),
				semconv.URLPath(req.Path()),
				attribute.String("kintone.operation", req.Operation()),
				attribute.Bool("kintone.retry_safe", req.RetrySafe()),
			),
		)
		defer span.End()

		carrier := propagation.HeaderCarrier(make(nethttp.Header))
		l.propagator.Inject(ctx, carrier)
		if len(carrier) > 0 {
			req = req.WithHeaders(nethttp.Header(carrier))
		}

		resp, err := next.Do(ctx, req)

		out := OutcomeOf(resp, err)
		if out.Status != 0 {
			span.SetAttributes(semconv.HTTPResponseStatusCode(out.Status))
		}
		if err != nil {
			span.SetAttributes(
				attribute.String("kintone.outcome", out.Kind.String()),
				attribute.Int("kintone.attempts", Attempts(err)),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if resp != nil && resp.Attempts > 0 {
			span.SetAttributes(attribute.Int("kintone.attempts", resp.Attempts))
		}
		span.SetStatus(codes.Ok, "")
		return resp, nil
	})
}

func spanName(req *Request) string {
	if op := req.Operation(); op != "" {
		return "kintone " + op
	}
	return req.Method() + " " + req.Path()
}
