package hconn

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hwire/hconn"

// metrics holds the client's instruments. A nil *metrics records nothing.
type metrics struct {
	lease    metric.Int64Counter
	discard  metric.Int64Counter
	dial     metric.Int64Counter
	exchange metric.Int64Counter
	errors   metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	lease, err := meter.Int64Counter("hconn.pool.lease",
		metric.WithDescription("Pool lease attempts, by whether an idle connection was found"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hconn.pool.lease counter: %w", err)
	}
	discard, err := meter.Int64Counter("hconn.pool.discard",
		metric.WithDescription("Connections closed instead of being returned to the pool"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hconn.pool.discard counter: %w", err)
	}
	dial, err := meter.Int64Counter("hconn.conn.dial",
		metric.WithDescription("Connections established, by transport kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hconn.conn.dial counter: %w", err)
	}
	exchange, err := meter.Int64Counter("hconn.exchange",
		metric.WithDescription("Exchanges started, by protocol"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hconn.exchange counter: %w", err)
	}
	errs, err := meter.Int64Counter("hconn.exchange.error",
		metric.WithDescription("Failed exchanges, by phase"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hconn.exchange.error counter: %w", err)
	}
	return &metrics{
		lease:    lease,
		discard:  discard,
		dial:     dial,
		exchange: exchange,
		errors:   errs,
	}, nil
}

func (m *metrics) recordLease(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.lease.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

func (m *metrics) recordDiscard(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.discard.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) recordDial(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.dial.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *metrics) recordExchange(ctx context.Context, proto string) {
	if m == nil {
		return
	}
	m.exchange.Add(ctx, 1, metric.WithAttributes(attribute.String("proto", proto)))
}

func (m *metrics) recordError(ctx context.Context, phase string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}
