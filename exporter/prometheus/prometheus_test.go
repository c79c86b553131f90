package prometheus

import (
	"net/http/httptest"
	"strings"
	"testing"

	"vajrapulse/engine"
	"vajrapulse/engine/metrics"
)

func TestExporter_ExportPublishesFailureCauseGauges(t *testing.T) {
	e := New()

	snap := metrics.AggregatedMetrics{
		TotalExecutions:  10,
		TotalFailures:    3,
		FailureRate:      0.3,
		Percentiles:      map[float64]float64{0.5: 12.0, 0.99: 45.0},
		TopFailureCauses: map[string]int64{"timeout": 2, "status 500": 1},
	}
	if err := e.Export(snap, engine.RunContext{RunID: "run-1"}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`vajrapulse_failure_causes_total{cause="timeout"} 2`,
		`vajrapulse_failure_causes_total{cause="status 500"} 1`,
		"vajrapulse_latency_p500_ms 12",
		"vajrapulse_latency_p990_ms 45",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}
