package metrics

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_SuccessesAndFailuresSumToTotal(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5, 0.9, 0.99}, 10*time.Second)

	for i := 0; i < 7; i++ {
		c.RecordSuccess(10 * time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		c.RecordFailure(20*time.Millisecond, "boom")
	}

	snap := c.Snapshot(nil)
	require.Equal(t, int64(10), snap.TotalExecutions)
	assert.Equal(t, int64(7), snap.TotalSuccesses)
	assert.Equal(t, int64(3), snap.TotalFailures)
	assert.InDelta(t, 0.3, snap.FailureRate, 1e-9)
	assert.Equal(t, int64(3), snap.TopFailureCauses["boom"])
}

func TestCollector_FailureCausesBoundedCardinality(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5}, time.Second)

	for i := 0; i < maxFailureCauseCardinality+5; i++ {
		c.RecordFailure(time.Millisecond, strconv.Itoa(i))
	}

	snap := c.Snapshot(nil)
	assert.LessOrEqual(t, len(snap.TopFailureCauses), maxFailureCauseCardinality+1) // +1 for "other"
	assert.Equal(t, int64(5), snap.TopFailureCauses[otherFailureCause])
}

func TestCollector_FailureRateZeroWhenEmpty(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5}, time.Second)
	assert.Equal(t, 0.0, c.FailureRate())
	assert.Equal(t, 0.0, c.RecentFailureRate())
	assert.Equal(t, int64(0), c.TotalExecutions())
}

func TestCollector_PercentileKeysPresentAndNonDecreasing(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5, 0.9, 0.99}, 10*time.Second)
	for i := 1; i <= 100; i++ {
		c.RecordSuccess(time.Duration(i) * time.Millisecond)
	}

	snap := c.Snapshot(nil)
	p50, ok50 := snap.Percentiles[0.5]
	p90, ok90 := snap.Percentiles[0.9]
	p99, ok99 := snap.Percentiles[0.99]
	require.True(t, ok50)
	require.True(t, ok90)
	require.True(t, ok99)
	assert.LessOrEqual(t, p50, p90)
	assert.LessOrEqual(t, p90, p99)
}

func TestCollector_ConcurrentRecordingIsRaceFree(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5, 0.99}, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%5 == 0 {
				c.RecordFailure(time.Millisecond, "x")
			} else {
				c.RecordSuccess(time.Millisecond)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.TotalExecutions())
}

func TestCollector_ClientMetricsDefaultNil(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5}, time.Second)
	snap := c.Snapshot(nil)
	assert.Nil(t, snap.ClientMetrics)

	c.RecordClientMetrics(ClientMetrics{PoolUtilization: 0.5, QueueDepth: 3})
	snap2 := c.Snapshot(nil)
	require.NotNil(t, snap2.ClientMetrics)
	assert.Equal(t, 0.5, snap2.ClientMetrics.PoolUtilization)
}
