package exporter

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vajrapulse/engine"
	"vajrapulse/engine/metrics"
)

func TestConsoleExporter_WritesSummaryLine(t *testing.T) {
	var buf bytes.Buffer
	e := NewConsoleExporter(&buf)

	snap := metrics.AggregatedMetrics{
		RunID:           "run-1",
		TotalExecutions: 10,
		TotalSuccesses:  9,
		TotalFailures:   1,
		FailureRate:     0.1,
		Percentiles:     map[float64]float64{0.5: 12.3, 0.99: 45.6},
	}
	err := e.Export(snap, engine.RunContext{RunID: "run-1", StartTime: time.Now()})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "run=run-1")
	assert.Contains(t, buf.String(), "total=10")
}

type failingExporter struct{}

func (failingExporter) Export(metrics.AggregatedMetrics, engine.RunContext) error {
	return errors.New("boom")
}

type panickyExporter struct{}

func (panickyExporter) Export(metrics.AggregatedMetrics, engine.RunContext) error {
	panic("kaboom")
}

func TestReporter_CountsExporterFailuresWithoutStopping(t *testing.T) {
	r := NewReporter(10*time.Millisecond, failingExporter{}, panickyExporter{})
	r.Start(func() (metrics.AggregatedMetrics, engine.RunContext) {
		return metrics.AggregatedMetrics{}, engine.RunContext{}
	})
	time.Sleep(35 * time.Millisecond)
	r.Stop()

	assert.GreaterOrEqual(t, r.Failures(), int64(2))
}

type recordingExporter struct {
	calls int
}

func (r *recordingExporter) Export(metrics.AggregatedMetrics, engine.RunContext) error {
	r.calls++
	return nil
}

func TestReporter_ExportsFinalSnapshotOnStop(t *testing.T) {
	rec := &recordingExporter{}
	r := NewReporter(time.Hour, rec) // interval so long only Stop's final export fires
	r.Start(func() (metrics.AggregatedMetrics, engine.RunContext) {
		return metrics.AggregatedMetrics{}, engine.RunContext{}
	})
	r.Stop()

	assert.Equal(t, 1, rec.calls)
}
