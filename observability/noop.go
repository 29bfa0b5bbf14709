package observability

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// noopProvider is returned for disabled configs. Clients built with it pay
// only for the instrumentation calls themselves.
type noopProvider struct {
	tp tracenoop.TracerProvider
	mp metricnoop.MeterProvider
}

func newNoopProvider() *noopProvider {
	return &noopProvider{tp: tracenoop.NewTracerProvider(), mp: metricnoop.NewMeterProvider()}
}

func (n *noopProvider) TracerProvider() trace.TracerProvider { return n.tp }

func (n *noopProvider) MeterProvider() metric.MeterProvider { return n.mp }

func (*noopProvider) Shutdown(context.Context) error { return nil }

func (*noopProvider) ForceFlush(context.Context) error { return nil }
