package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateController_TerminalOnNonPositiveTarget(t *testing.T) {
	rc := NewRateController(time.Now())
	result := rc.WaitForNext(0, make(chan struct{}))
	assert.Equal(t, WaitTerminal, result)
}

func TestRateController_InterruptUnblocksWait(t *testing.T) {
	rc := NewRateController(time.Now())
	interrupt := make(chan struct{})
	close(interrupt)

	result := rc.WaitForNext(1, interrupt)
	assert.Equal(t, WaitInterrupted, result)
}

func TestRateController_PacesAtApproximatelyTargetRate(t *testing.T) {
	rc := NewRateController(time.Now())
	interrupt := make(chan struct{})

	const n = 20
	const targetTPS = 200.0
	start := time.Now()
	for i := 0; i < n; i++ {
		rc.WaitForNext(targetTPS, interrupt)
	}
	elapsed := time.Since(start)

	expected := time.Duration(float64(n) / targetTPS * float64(time.Second))
	assert.InDelta(t, expected.Seconds(), elapsed.Seconds(), 0.05)
	assert.Equal(t, int64(n), rc.Submissions())
}

func TestTPSError_ZeroTargetIsZeroError(t *testing.T) {
	assert.Equal(t, 0.0, TPSError(50, 0))
}

func TestTPSError_ComputesNormalizedDeviation(t *testing.T) {
	assert.InDelta(t, 0.1, TPSError(90, 100), 1e-9)
}
