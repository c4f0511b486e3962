// Package emitter exposes the monitor's per-tick observations as
// Prometheus metrics via OTEL.
package emitter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MonitorEmitter records player count, idle time and error counters.
// It implements monitor.TickObserver.
type MonitorEmitter struct {
	meter metric.Meter

	playerCount   metric.Int64Gauge
	idleSeconds   metric.Float64Gauge
	ticksTotal    metric.Int64Counter
	sampleErrors  metric.Int64Counter
	publishErrors metric.Int64Counter
}

// New creates an emitter on the global meter provider.
func New() (*MonitorEmitter, error) {
	e := &MonitorEmitter{meter: otel.Meter("uinu")}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *MonitorEmitter) initMetrics() error {
	var err error

	e.playerCount, err = e.meter.Int64Gauge(
		"uinu_player_count",
		metric.WithDescription("Players online at the last sample"),
	)
	if err != nil {
		return fmt.Errorf("create player_count gauge: %w", err)
	}

	e.idleSeconds, err = e.meter.Float64Gauge(
		"uinu_idle_seconds",
		metric.WithDescription("Time since the last observed activity"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create idle_seconds gauge: %w", err)
	}

	e.ticksTotal, err = e.meter.Int64Counter(
		"uinu_ticks_total",
		metric.WithDescription("Total monitor ticks with a successful sample"),
	)
	if err != nil {
		return fmt.Errorf("create ticks counter: %w", err)
	}

	e.sampleErrors, err = e.meter.Int64Counter(
		"uinu_sample_errors_total",
		metric.WithDescription("Total failed activity samples"),
	)
	if err != nil {
		return fmt.Errorf("create sample_errors counter: %w", err)
	}

	e.publishErrors, err = e.meter.Int64Counter(
		"uinu_metric_publish_errors_total",
		metric.WithDescription("Total failed metric sink publishes"),
	)
	if err != nil {
		return fmt.Errorf("create publish_errors counter: %w", err)
	}

	return nil
}

// ObserveTick records one successful sample.
func (e *MonitorEmitter) ObserveTick(ctx context.Context, players int, idle time.Duration) {
	e.playerCount.Record(ctx, int64(players))
	e.idleSeconds.Record(ctx, idle.Seconds())
	e.ticksTotal.Add(ctx, 1)
}

// ObserveSampleError records a failed activity sample.
func (e *MonitorEmitter) ObserveSampleError(ctx context.Context) {
	e.sampleErrors.Add(ctx, 1)
}

// ObservePublishError records a failed sink publish.
func (e *MonitorEmitter) ObservePublishError(ctx context.Context) {
	e.publishErrors.Add(ctx, 1)
}
