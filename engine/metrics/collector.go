package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
)

// bucketSpan is the width of one recent-window bucket. recentFailureRate
// reports over a bounded ring of these, trading precision for O(1) memory
// regardless of how long the run lasts.
const bucketSpan = 1 * time.Second

const maxBuckets = 120 // covers a 2-minute recent window ceiling

// maxFailureCauseCardinality bounds the distinct failure-cause strings the
// collector tracks, mirroring the cardinality-limiting guard Prometheus
// exporters apply to caller-supplied label values.
const maxFailureCauseCardinality = 16

const otherFailureCause = "other"

type bucket struct {
	startUnix int64
	total     int64
	failures  int64
}

// Collector records TaskResults from every worker and produces bounded
// AggregatedMetrics snapshots. Counters are lock-free; the latency
// histogram and the recent-window ring share a single mutex since
// hdrhistogram.Histogram is not safe for concurrent writers.
type Collector struct {
	runID string

	totalSuccesses atomic.Int64
	totalFailures  atomic.Int64

	percentiles []float64

	recentWindow time.Duration

	mu            sync.Mutex
	hist          *hdrhistogram.Histogram
	buckets       [maxBuckets]bucket
	clientM       *ClientMetrics
	failureCauses map[string]int64
	snapIndex     []float64 // reused scratch buffer for Snapshot, per-collector
}

// NewCollector builds a Collector reporting the given (already normalized)
// percentiles and tracking recentFailureRate over recentWindow.
func NewCollector(runID string, percentiles []float64, recentWindow time.Duration) *Collector {
	if recentWindow <= 0 {
		recentWindow = 10 * time.Second
	}
	return &Collector{
		runID:         runID,
		percentiles:   percentiles,
		recentWindow:  recentWindow,
		hist:          hdrhistogram.New(1, 3_600_000, 3), // 1ms..1hr, 3 significant figures
		failureCauses: make(map[string]int64),
		snapIndex:     make([]float64, len(percentiles)),
	}
}

// RecordSuccess ingests a successful TaskResult's latency.
func (c *Collector) RecordSuccess(latency time.Duration) {
	c.totalSuccesses.Add(1)
	c.record(latency, false)
}

// RecordFailure ingests a failed TaskResult's latency and cause. cause is
// aggregated into TopFailureCauses, bounded to maxFailureCauseCardinality
// distinct strings; an empty cause is not tallied.
func (c *Collector) RecordFailure(latency time.Duration, cause string) {
	c.totalFailures.Add(1)
	c.record(latency, true)
	if cause != "" {
		c.recordCause(cause)
	}
}

func (c *Collector) recordCause(cause string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.failureCauses[cause]; !ok && len(c.failureCauses) >= maxFailureCauseCardinality {
		c.failureCauses[otherFailureCause]++
		return
	}
	c.failureCauses[cause]++
}

// RecordClientMetrics replaces the latest client-side signal. A zero value
// means the caller has nothing new to report; absent entirely, snapshots
// carry a nil ClientMetrics.
func (c *Collector) RecordClientMetrics(cm ClientMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientM = &cm
}

func (c *Collector) record(latency time.Duration, failed bool) {
	millis := latency.Milliseconds()
	if millis < 1 {
		millis = 1
	}

	now := time.Now().Unix()
	c.mu.Lock()
	_ = c.hist.RecordValue(millis)
	idx := c.bucketIndex(now)
	b := &c.buckets[idx]
	if b.startUnix != now {
		*b = bucket{startUnix: now}
	}
	b.total++
	if failed {
		b.failures++
	}
	c.mu.Unlock()
}

func (c *Collector) bucketIndex(unixSec int64) int {
	return int(((unixSec % maxBuckets) + maxBuckets) % maxBuckets)
}

// FailureRate implements Provider.
func (c *Collector) FailureRate() float64 {
	successes := c.totalSuccesses.Load()
	failures := c.totalFailures.Load()
	total := successes + failures
	if total == 0 {
		return 0
	}
	return clamp01(float64(failures) / float64(total))
}

// RecentFailureRate implements Provider, summing buckets within recentWindow.
func (c *Collector) RecentFailureRate() float64 {
	cutoff := time.Now().Add(-c.recentWindow).Unix()
	now := time.Now().Unix()

	c.mu.Lock()
	var total, failures int64
	for sec := cutoff; sec <= now; sec++ {
		b := c.buckets[c.bucketIndex(sec)]
		if b.startUnix == sec {
			total += b.total
			failures += b.failures
		}
	}
	c.mu.Unlock()

	if total == 0 {
		return 0
	}
	return clamp01(float64(failures) / float64(total))
}

// TotalExecutions implements Provider.
func (c *Collector) TotalExecutions() int64 {
	return c.totalSuccesses.Load() + c.totalFailures.Load()
}

// Snapshot produces an immutable AggregatedMetrics value. The percentile
// scratch buffer is reused across calls from the same Collector to avoid
// allocation storms at high snapshot frequency; it is not shared across
// Collectors.
func (c *Collector) Snapshot(sysInfo map[string]string) AggregatedMetrics {
	successes := c.totalSuccesses.Load()
	failures := c.totalFailures.Load()
	total := successes + failures

	c.mu.Lock()
	percentileValues := make(map[float64]float64, len(c.percentiles))
	for i, p := range c.percentiles {
		v := float64(c.hist.ValueAtQuantile(p * 100))
		c.snapIndex[i] = v
		percentileValues[p] = v
	}
	mean := c.hist.Mean()
	stddev := c.hist.StdDev()
	var clientCopy *ClientMetrics
	if c.clientM != nil {
		cm := *c.clientM
		clientCopy = &cm
	}
	causesCopy := make(map[string]int64, len(c.failureCauses))
	for k, v := range c.failureCauses {
		causesCopy[k] = v
	}
	c.mu.Unlock()

	failureRate := 0.0
	if total > 0 {
		failureRate = clamp01(float64(failures) / float64(total))
	}

	return AggregatedMetrics{
		RunID:             c.runID,
		TotalExecutions:   total,
		TotalSuccesses:    successes,
		TotalFailures:     failures,
		FailureRate:       failureRate,
		RecentFailureRate: c.RecentFailureRate(),
		Percentiles:       percentileValues,
		ClientMetrics:     clientCopy,
		Latency:           LatencyStats{MeanMillis: mean, StddevMillis: stddev},
		SystemInfo:        sysInfo,
		TopFailureCauses:  causesCopy,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
