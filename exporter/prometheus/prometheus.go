// Package prometheus exports VajraPulse's AggregatedMetrics snapshots
// through a dedicated Prometheus registry, one gauge per reported field.
// Unlike a general-purpose instrumentation provider, this exporter owns a
// fixed, known metric set: it exists to publish engine snapshots, not to
// let arbitrary callers mint counters.
package prometheus

import (
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vajrapulse/engine"
	"vajrapulse/engine/metrics"
)

// Exporter pushes AggregatedMetrics fields into a Prometheus registry on
// every Export call. Percentile gauges are created lazily, keyed by their
// normalized percentile value, since the configured percentile set is
// fixed for the life of a run.
type Exporter struct {
	reg *prom.Registry

	totalExecutions prom.Gauge
	totalSuccesses  prom.Gauge
	totalFailures   prom.Gauge
	failureRate     prom.Gauge
	recentFailRate  prom.Gauge
	latencyMean     prom.Gauge
	latencyStddev   prom.Gauge
	targetTPS       prom.Gauge
	actualTPS       prom.Gauge
	tpsError        prom.Gauge

	percentileGauges map[float64]prom.Gauge
	failureCauses    *prom.GaugeVec
}

// New builds an Exporter registered against a fresh Prometheus registry.
func New() *Exporter {
	reg := prom.NewRegistry()
	e := &Exporter{
		reg: reg,
		totalExecutions: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_total_executions", Help: "total task executions recorded",
		}),
		totalSuccesses: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_total_successes", Help: "total successful task executions",
		}),
		totalFailures: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_total_failures", Help: "total failed task executions",
		}),
		failureRate: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_failure_rate", Help: "overall failure rate in [0,1]",
		}),
		recentFailRate: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_recent_failure_rate", Help: "recent-window failure rate in [0,1]",
		}),
		latencyMean: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_latency_mean_ms", Help: "mean task latency in milliseconds",
		}),
		latencyStddev: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_latency_stddev_ms", Help: "task latency standard deviation in milliseconds",
		}),
		targetTPS: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_target_tps", Help: "pattern's current target submissions per second",
		}),
		actualTPS: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_actual_tps", Help: "observed submission rate, per RateController",
		}),
		tpsError: prom.NewGauge(prom.GaugeOpts{
			Name: "vajrapulse_tps_error", Help: "normalized deviation between actual and target TPS",
		}),
		percentileGauges: make(map[float64]prom.Gauge),
		failureCauses: prom.NewGaugeVec(prom.GaugeOpts{
			Name: "vajrapulse_failure_causes_total", Help: "failure count by cause, bounded cardinality",
		}, []string{"cause"}),
	}

	reg.MustRegister(e.totalExecutions, e.totalSuccesses, e.totalFailures,
		e.failureRate, e.recentFailRate, e.latencyMean, e.latencyStddev, e.failureCauses,
		e.targetTPS, e.actualTPS, e.tpsError)
	return e
}

// Handler returns the HTTP handler serving /metrics for this exporter's
// registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.reg, promhttp.HandlerOpts{})
}

// Export implements exporter.MetricsExporter.
func (e *Exporter) Export(snap metrics.AggregatedMetrics, _ engine.RunContext) error {
	e.totalExecutions.Set(float64(snap.TotalExecutions))
	e.totalSuccesses.Set(float64(snap.TotalSuccesses))
	e.totalFailures.Set(float64(snap.TotalFailures))
	e.failureRate.Set(snap.FailureRate)
	e.recentFailRate.Set(snap.RecentFailureRate)
	e.latencyMean.Set(snap.Latency.MeanMillis)
	e.latencyStddev.Set(snap.Latency.StddevMillis)
	e.targetTPS.Set(snap.TargetTPS)
	e.actualTPS.Set(snap.ActualTPS)
	e.tpsError.Set(snap.TPSError)

	for p, v := range snap.Percentiles {
		g, ok := e.percentileGauges[p]
		if !ok {
			g = prom.NewGauge(prom.GaugeOpts{
				Name: fmt.Sprintf("vajrapulse_latency_p%d_ms", int(p*1000)),
				Help: fmt.Sprintf("p%.3f latency in milliseconds", p),
			})
			if err := e.reg.Register(g); err != nil {
				continue
			}
			e.percentileGauges[p] = g
		}
		g.Set(v)
	}

	for cause, count := range snap.TopFailureCauses {
		e.failureCauses.WithLabelValues(cause).Set(float64(count))
	}
	return nil
}
