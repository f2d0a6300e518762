package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the board's counters and histograms.
type Metrics struct {
	Moves            metric.Int64Counter
	MoveRollbacks    metric.Int64Counter
	LinkRequests     metric.Int64Counter
	LinkRollbacks    metric.Int64Counter
	RequestDuration  metric.Float64Histogram
	DiscardedReplies metric.Int64Counter
}

// NewMetrics creates all instruments from meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.Moves, err = meter.Int64Counter("taskboard.board.moves",
		metric.WithDescription("Drag moves applied to local state")); err != nil {
		return nil, err
	}
	if m.MoveRollbacks, err = meter.Int64Counter("taskboard.board.move_rollbacks",
		metric.WithDescription("Moves reverted after the backend rejected them")); err != nil {
		return nil, err
	}
	if m.LinkRequests, err = meter.Int64Counter("taskboard.links.requests",
		metric.WithDescription("Link and unlink requests issued")); err != nil {
		return nil, err
	}
	if m.LinkRollbacks, err = meter.Int64Counter("taskboard.links.rollbacks",
		metric.WithDescription("Link diffs reverted after a failed request")); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("taskboard.http.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.DiscardedReplies, err = meter.Int64Counter("taskboard.board.discarded_replies",
		metric.WithDescription("Backend replies dropped because the view was closed or reloaded")); err != nil {
		return nil, err
	}
	return m, nil
}

// NoopMetrics returns instruments backed by the no-op meter.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(Noop().Meter)
	return m
}

// Add increments c when it is set.
func Add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
