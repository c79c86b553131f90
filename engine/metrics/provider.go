// Package metrics implements the feedback channel between task execution
// and the adaptive load controller: a thread-safe collector of per-call
// outcomes, a bounded snapshot type, and a short-TTL cached read view.
package metrics

// Provider is the read-only capability AdaptiveLoadPattern depends on. It
// deliberately exposes no mutation methods, breaking the ownership cycle
// between the controller and the collector it observes.
type Provider interface {
	FailureRate() float64
	RecentFailureRate() float64
	TotalExecutions() int64
}

// ClientMetrics carries optional client-side signals (connection pool
// utilization, queue depth, client-observed errors) that a task or
// transport layer may push alongside TaskResults. A zero value means "not
// reported".
type ClientMetrics struct {
	PoolUtilization float64
	QueueDepth      int64
	ClientErrors    int64
}

// LatencyStats is a mean/stddev estimate computed from the running
// histogram, included in every AggregatedMetrics snapshot for convenience.
type LatencyStats struct {
	MeanMillis   float64
	StddevMillis float64
}

// AggregatedMetrics is the immutable value produced by Collector.Snapshot.
type AggregatedMetrics struct {
	RunID             string
	TotalExecutions   int64
	TotalSuccesses    int64
	TotalFailures     int64
	FailureRate       float64
	RecentFailureRate float64
	Percentiles       map[float64]float64 // percentile -> latency in milliseconds
	ClientMetrics     *ClientMetrics       // nil if never reported
	Latency           LatencyStats
	SystemInfo        map[string]string

	// TopFailureCauses counts failures by their reported cause string, up to
	// maxFailureCauseCardinality distinct causes; beyond that, additional
	// causes accrue under the "other" bucket instead of growing unbounded.
	TopFailureCauses map[string]int64

	// TargetTPS, ActualTPS, and TPSError are the RateController's pacing
	// gauges, filled in by ExecutionEngine.Snapshot (the collector itself
	// has no notion of a target rate). TPSError is |actual-target|/target,
	// 0 when target is 0.
	TargetTPS float64
	ActualTPS float64
	TPSError  float64
}
