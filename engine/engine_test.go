package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedTask struct {
	sleep     time.Duration
	failEvery int // 0 = never fail
	calls     atomic.Int64
}

func (t *scriptedTask) Init(ctx context.Context) error { return nil }

func (t *scriptedTask) Execute(ctx context.Context, iteration int64) TaskResult {
	n := t.calls.Add(1)
	if t.sleep > 0 {
		time.Sleep(t.sleep)
	}
	if t.failEvery > 0 && n%int64(t.failEvery) == 0 {
		return Failure(0, "scripted failure")
	}
	return Success(0)
}

func (t *scriptedTask) Teardown(ctx context.Context) {}

// S1 — static load, always-succeeding task: totalExecutions in [90,110],
// failureRate 0, engine STOPPED within 1.2s.
func TestExecutionEngine_S1_StaticLoadAlwaysSucceeds(t *testing.T) {
	task := &scriptedTask{}
	cfg := Defaults()
	cfg.Task = task
	cfg.Pattern = NewStaticLoadPattern(100, time.Second)

	eng, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	snapshotMetrics, err := eng.Run(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, 1200*time.Millisecond)
	assert.InDelta(t, 100, snapshotMetrics.TotalExecutions, 10)
	assert.Equal(t, 0.0, snapshotMetrics.FailureRate)
	assert.Equal(t, StateStopped, eng.State())
}

// S5 — shutdown mid-run: Static(tps=50, duration=10s), task sleeps 100ms.
// After ~150ms, trigger shutdown; expect STOPPED within drain+force budget
// and no further recording afterward.
func TestExecutionEngine_S5_ShutdownDuringRun(t *testing.T) {
	task := &scriptedTask{sleep: 100 * time.Millisecond}
	cfg := Defaults()
	cfg.Task = task
	cfg.Pattern = NewStaticLoadPattern(50, 10*time.Second)
	cfg.DrainTimeout = 300 * time.Millisecond
	cfg.ForceTimeout = 300 * time.Millisecond

	eng, err := New(cfg)
	require.NoError(t, err)

	go func() {
		time.Sleep(150 * time.Millisecond)
		eng.Stop()
	}()

	start := time.Now()
	_, err = eng.Run(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, 150*time.Millisecond+600*time.Millisecond+300*time.Millisecond)
	assert.Equal(t, StateStopped, eng.State())

	totalAfterStop := eng.Snapshot().Metrics.TotalExecutions
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, totalAfterStop, eng.Snapshot().Metrics.TotalExecutions, "no recording after STOPPED")
}

// S6 — failing task: Static(tps=100, duration=500ms), task fails 100% ->
// failureRate == 1.0.
func TestExecutionEngine_S6_AlwaysFailingTask(t *testing.T) {
	task := &scriptedTask{failEvery: 1}
	cfg := Defaults()
	cfg.Task = task
	cfg.Pattern = NewStaticLoadPattern(100, 500*time.Millisecond)

	eng, err := New(cfg)
	require.NoError(t, err)

	snapshotMetrics, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, snapshotMetrics.FailureRate)
}

func TestExecutionEngine_SecondRunFails(t *testing.T) {
	task := &scriptedTask{}
	cfg := Defaults()
	cfg.Task = task
	cfg.Pattern = NewStaticLoadPattern(50, 50*time.Millisecond)

	eng, err := New(cfg)
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestExecutionEngine_ZeroTargetTPSExitsWithinOneWakeup(t *testing.T) {
	task := &scriptedTask{}
	cfg := Defaults()
	cfg.Task = task
	cfg.Pattern = NewStaticLoadPattern(0, time.Hour) // terminal from the first tick

	eng, err := New(cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = eng.Run(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 200*time.Millisecond)
}
