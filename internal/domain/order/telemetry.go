package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xenking/canteen/internal/domain/order"

type metrics struct {
	placed        metric.Int64Counter
	cancelled     metric.Int64Counter
	statusUpdates metric.Int64Counter
	compensations metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) metrics {
	m := mp.Meter(instrumentationName)
	return metrics{
		placed:        counter(m, "orders.placed", "Orders placed"),
		cancelled:     counter(m, "orders.cancelled", "Orders cancelled"),
		statusUpdates: counter(m, "orders.status_updates", "Order status changes"),
		compensations: counter(m, "orders.compensations", "Compensating writes by outcome"),
	}
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}

func (m metrics) compensation(ctx context.Context, r *Repair, outcome string) {
	m.compensations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", r.Operation),
		attribute.String("action", string(r.Action)),
		attribute.String("outcome", outcome),
	))
}

// finish records err on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
