// Package otel exports VajraPulse's AggregatedMetrics snapshots through an
// OpenTelemetry meter. It publishes the prometheus exporter's gauges for
// total executions, failure rates, latency mean/stddev, percentiles and
// target/actual/error TPS under dotted names; it does not publish the
// success/failure totals or the per-cause failure counts.
package otel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"vajrapulse/engine"
	"vajrapulse/engine/metrics"
)

// Exporter pushes AggregatedMetrics into an OTel Float64Gauge per field via
// an observable callback, registered once at construction. Percentile
// gauges are created lazily the first time a given percentile is observed,
// guarded by mu since registration happens on the Reporter's goroutine
// while callbacks fire from the SDK's own collection goroutine.
type Exporter struct {
	mp     *sdkmetric.MeterProvider
	meter  metric.Meter
	tracer trace.Tracer

	latest atomic.Pointer[metrics.AggregatedMetrics]

	totalExecutions metric.Float64ObservableGauge
	failureRate     metric.Float64ObservableGauge
	recentFailRate  metric.Float64ObservableGauge
	latencyMean     metric.Float64ObservableGauge
	latencyStddev   metric.Float64ObservableGauge
	targetTPS       metric.Float64ObservableGauge
	actualTPS       metric.Float64ObservableGauge
	tpsError        metric.Float64ObservableGauge

	mu               sync.Mutex
	percentileGauges map[float64]metric.Float64ObservableGauge
}

// New builds an Exporter backed by a fresh OTel SDK MeterProvider. Callers
// that want traces/metrics shipped to a collector attach exporters/readers
// to mp via Provider() before the run starts.
func New() (*Exporter, error) {
	mp := sdkmetric.NewMeterProvider()
	meter := mp.Meter("vajrapulse")

	e := &Exporter{
		mp:               mp,
		meter:            meter,
		tracer:           noop.NewTracerProvider().Tracer("vajrapulse"),
		percentileGauges: make(map[float64]metric.Float64ObservableGauge),
	}
	e.latest.Store(&metrics.AggregatedMetrics{})

	var err error
	e.totalExecutions, err = meter.Float64ObservableGauge("vajrapulse.total_executions",
		metric.WithFloat64Callback(e.observeTotalExecutions))
	if err != nil {
		return nil, err
	}
	e.failureRate, err = meter.Float64ObservableGauge("vajrapulse.failure_rate",
		metric.WithFloat64Callback(e.observeFailureRate))
	if err != nil {
		return nil, err
	}
	e.recentFailRate, err = meter.Float64ObservableGauge("vajrapulse.recent_failure_rate",
		metric.WithFloat64Callback(e.observeRecentFailureRate))
	if err != nil {
		return nil, err
	}
	e.latencyMean, err = meter.Float64ObservableGauge("vajrapulse.latency_mean_ms",
		metric.WithFloat64Callback(e.observeLatencyMean))
	if err != nil {
		return nil, err
	}
	e.latencyStddev, err = meter.Float64ObservableGauge("vajrapulse.latency_stddev_ms",
		metric.WithFloat64Callback(e.observeLatencyStddev))
	if err != nil {
		return nil, err
	}
	e.targetTPS, err = meter.Float64ObservableGauge("vajrapulse.target_tps",
		metric.WithFloat64Callback(e.observeTargetTPS))
	if err != nil {
		return nil, err
	}
	e.actualTPS, err = meter.Float64ObservableGauge("vajrapulse.actual_tps",
		metric.WithFloat64Callback(e.observeActualTPS))
	if err != nil {
		return nil, err
	}
	e.tpsError, err = meter.Float64ObservableGauge("vajrapulse.tps_error",
		metric.WithFloat64Callback(e.observeTPSError))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// SetTracerProvider attaches a real TracerProvider in place of the no-op
// default, so Export's span is recorded by whatever backend the caller
// wired the provider to.
func (e *Exporter) SetTracerProvider(tp trace.TracerProvider) {
	e.tracer = tp.Tracer("vajrapulse")
}

// Provider returns the underlying SDK MeterProvider for readers/exporters
// to attach to.
func (e *Exporter) Provider() *sdkmetric.MeterProvider { return e.mp }

// Export implements exporter.MetricsExporter: it stashes the snapshot for
// the next observable-gauge collection pass and lazily registers a gauge
// for any percentile not seen before.
func (e *Exporter) Export(snap metrics.AggregatedMetrics, runCtx engine.RunContext) error {
	_, span := e.tracer.Start(context.Background(), "vajrapulse.export",
		trace.WithAttributes(attribute.String("run_id", runCtx.RunID)))
	defer span.End()

	e.latest.Store(&snap)

	for p := range snap.Percentiles {
		if err := e.ensurePercentileGauge(p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) ensurePercentileGauge(p float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.percentileGauges[p]; ok {
		return nil
	}
	pct := p
	g, err := e.meter.Float64ObservableGauge(
		fmt.Sprintf("vajrapulse.latency_p%d_ms", int(p*1000)),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			snap := e.latest.Load()
			v, ok := snap.Percentiles[pct]
			if !ok {
				return nil
			}
			obs.Observe(v, metric.WithAttributes(attribute.Float64("percentile", pct)))
			return nil
		}),
	)
	if err != nil {
		return err
	}
	e.percentileGauges[p] = g
	return nil
}

func (e *Exporter) observeTotalExecutions(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(float64(e.latest.Load().TotalExecutions))
	return nil
}

func (e *Exporter) observeFailureRate(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().FailureRate)
	return nil
}

func (e *Exporter) observeRecentFailureRate(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().RecentFailureRate)
	return nil
}

func (e *Exporter) observeLatencyMean(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().Latency.MeanMillis)
	return nil
}

func (e *Exporter) observeLatencyStddev(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().Latency.StddevMillis)
	return nil
}

func (e *Exporter) observeTargetTPS(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().TargetTPS)
	return nil
}

func (e *Exporter) observeActualTPS(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().ActualTPS)
	return nil
}

func (e *Exporter) observeTPSError(_ context.Context, obs metric.Float64Observer) error {
	obs.Observe(e.latest.Load().TPSError)
	return nil
}
