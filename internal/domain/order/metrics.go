package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts lifecycle outcomes. A nil *Metrics records nothing.
type Metrics struct {
	placed    metric.Int64Counter
	rejected  metric.Int64Counter
	cancelled metric.Int64Counter
	delivered metric.Int64Counter
}

// NewMetrics registers the order counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("vconn.orders.placed",
		metric.WithDescription("Orders placed, by eligibility path"),
	); err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	if m.rejected, err = meter.Int64Counter("vconn.orders.rejected",
		metric.WithDescription("Place or cancel requests rejected as ineligible"),
	); err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	if m.cancelled, err = meter.Int64Counter("vconn.orders.cancelled"); err != nil {
		return nil, errors.Wrap(err, "cancelled counter")
	}
	if m.delivered, err = meter.Int64Counter("vconn.orders.delivered"); err != nil {
		return nil, errors.Wrap(err, "delivered counter")
	}
	return &m, nil
}

func (m *Metrics) recordPlaced(ctx context.Context, path Reason) {
	if m == nil {
		return
	}
	m.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("path", string(path))))
}

func (m *Metrics) recordRejected(ctx context.Context, op string, err error) {
	var ie *IneligibleError
	if m == nil || !errors.As(err, &ie) {
		return
	}
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("reason", string(ie.Reason)),
	))
}

func (m *Metrics) recordCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.cancelled.Add(ctx, 1)
}

func (m *Metrics) recordDelivered(ctx context.Context) {
	if m == nil {
		return
	}
	m.delivered.Add(ctx, 1)
}
