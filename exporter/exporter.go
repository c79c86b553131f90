// Package exporter defines the engine's outward-facing metrics sink
// contract and a console implementation. Exporters are consumers of the
// periodic AggregatedMetrics stream; they never influence engine control
// flow, and a failing exporter never stops the run.
package exporter

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"vajrapulse/engine"
	"vajrapulse/engine/metrics"
	"vajrapulse/engine/telemetry"
)

// MetricsExporter consumes periodic snapshots and one final snapshot at
// end-of-run. Export errors are logged and counted by the caller; they
// never stop the run.
type MetricsExporter interface {
	Export(snapshot metrics.AggregatedMetrics, runCtx engine.RunContext) error
}

// ConsoleExporter writes a compact human-readable line per snapshot to the
// given writer. A write failure is returned as the Export error, which the
// Reporter logs and counts without stopping the run.
type ConsoleExporter struct {
	out io.Writer
}

func NewConsoleExporter(out io.Writer) *ConsoleExporter {
	return &ConsoleExporter{out: out}
}

func (c *ConsoleExporter) Export(snap metrics.AggregatedMetrics, runCtx engine.RunContext) error {
	_, err := fmt.Fprintf(c.out,
		"[%s] run=%s total=%d ok=%d fail=%d failRate=%.4f p50=%.1fms p99=%.1fms topCause=%s\n",
		time.Now().Format(time.RFC3339),
		runCtx.RunID,
		snap.TotalExecutions,
		snap.TotalSuccesses,
		snap.TotalFailures,
		snap.FailureRate,
		snap.Percentiles[0.5],
		snap.Percentiles[0.99],
		dominantCause(snap.TopFailureCauses),
	)
	return err
}

// dominantCause returns the highest-count failure cause, or "-" when none
// have been recorded yet.
func dominantCause(causes map[string]int64) string {
	best, bestCount := "-", int64(0)
	for cause, count := range causes {
		if count > bestCount {
			best, bestCount = cause, count
		}
	}
	return best
}

// Reporter periodically pulls Snapshot() from an engine and fans it out to
// every registered exporter, plus once more at end-of-run. Exporter errors
// are counted; a broken exporter never halts the reporter or the engine.
type Reporter struct {
	interval  time.Duration
	exporters []MetricsExporter
	failures  atomic.Int64
	stop      chan struct{}
	done      chan struct{}
	logger    telemetry.Logger
}

func NewReporter(interval time.Duration, exporters ...MetricsExporter) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{
		interval:  interval,
		exporters: exporters,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		logger:    telemetry.New(nil),
	}
}

// SetLogger overrides the structured logger used for exporter failures.
func (r *Reporter) SetLogger(logger telemetry.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Failures reports the total count of exporter errors observed so far.
func (r *Reporter) Failures() int64 { return r.failures.Load() }

// Start begins the periodic pull loop over snapshotFn, running until Stop
// is called. snapshotFn and runCtx are read fresh on every tick.
func (r *Reporter) Start(snapshotFn func() (metrics.AggregatedMetrics, engine.RunContext)) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.exportOnce(snapshotFn)
			case <-r.stop:
				r.exportOnce(snapshotFn) // final snapshot at end-of-run
				return
			}
		}
	}()
}

// Stop signals the reporter to export one final snapshot and exit; it
// blocks until that final export completes.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reporter) exportOnce(snapshotFn func() (metrics.AggregatedMetrics, engine.RunContext)) {
	snap, runCtx := snapshotFn()
	for i, e := range r.exporters {
		if err := r.safeExport(e, snap, runCtx); err != nil {
			r.failures.Add(1)
			r.logger.ErrorCtx(context.Background(), "metrics exporter failed",
				"run_id", runCtx.RunID, "exporter_index", i, "cause", err.Error())
		}
	}
}

func (r *Reporter) safeExport(e MetricsExporter, snap metrics.AggregatedMetrics, runCtx engine.RunContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("exporter panic: %v", rec)
		}
	}()
	return e.Export(snap, runCtx)
}
