package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vajrapulse/engine/telemetry"
)

// ShutdownCallback runs during drain, bounded by its own timeout. Errors are
// collected into a counter and logged; they never delay shutdown further.
type ShutdownCallback func() error

// ShutdownManager moves the engine from RUNNING to STOPPED while bounding
// total latency to drainTimeout+forceTimeout. It is idempotent: only the
// first close() call has effect.
type ShutdownManager struct {
	state        *engineState
	interruptCh  chan struct{}
	interruptOne sync.Once

	drainTimeout time.Duration
	forceTimeout time.Duration

	inFlight *atomic.Int64

	mu        sync.Mutex
	callbacks []ShutdownCallback

	callbackFailures atomic.Int64
	closed           atomic.Bool
	closeDone        chan struct{}

	logger telemetry.Logger
	runID  string
}

const (
	DefaultDrainTimeout = 5 * time.Second
	DefaultForceTimeout = 10 * time.Second
)

// NewShutdownManager builds a manager bound to the engine's state cell and
// in-flight counter. drainTimeout/forceTimeout of 0 fall back to defaults.
func NewShutdownManager(state *engineState, inFlight *atomic.Int64, drainTimeout, forceTimeout time.Duration) *ShutdownManager {
	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	if forceTimeout <= 0 {
		forceTimeout = DefaultForceTimeout
	}
	return &ShutdownManager{
		state:        state,
		interruptCh:  make(chan struct{}),
		closeDone:    make(chan struct{}),
		drainTimeout: drainTimeout,
		forceTimeout: forceTimeout,
		inFlight:     inFlight,
		logger:       telemetry.New(nil),
	}
}

// SetLogger overrides the structured logger used for callback failures.
// Safe to call any time before Close.
func (m *ShutdownManager) SetLogger(logger telemetry.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetRunID attaches the owning run's identifier to subsequent log lines.
func (m *ShutdownManager) SetRunID(runID string) { m.runID = runID }

// Interrupt returns the channel the submission loop and RateController
// select on; it closes exactly once, on the first Close call.
func (m *ShutdownManager) Interrupt() <-chan struct{} { return m.interruptCh }

// RegisterCallback adds a shutdown callback, invoked once during Close.
func (m *ShutdownManager) RegisterCallback(cb ShutdownCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// CallbackFailures reports how many registered callbacks returned an error.
func (m *ShutdownManager) CallbackFailures() int64 { return m.callbackFailures.Load() }

// Close runs the drain protocol. Safe to call concurrently and repeatedly;
// only the first call performs work, and later calls wait until it has
// finished.
func (m *ShutdownManager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		<-m.closeDone
		return
	}
	defer close(m.closeDone)

	m.state.cas(StateRunning, StateDraining)
	m.interruptOne.Do(func() { close(m.interruptCh) })

	if !m.awaitDrain(m.drainTimeout) {
		// workers still outstanding after the graceful window; give them
		// forceTimeout more before abandoning them.
		m.awaitDrain(m.forceTimeout)
	}

	m.runCallbacks()

	m.state.cas(StateDraining, StateStopped)
}

func (m *ShutdownManager) awaitDrain(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.inFlight.Load() == 0 {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.inFlight.Load() == 0
}

func (m *ShutdownManager) runCallbacks() {
	m.mu.Lock()
	cbs := make([]ShutdownCallback, len(m.callbacks))
	copy(cbs, m.callbacks)
	m.mu.Unlock()

	for i, cb := range cbs {
		m.runOneCallback(i, cb)
	}
}

func (m *ShutdownManager) runOneCallback(index int, cb ShutdownCallback) {
	const perCallbackTimeout = 2 * time.Second
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errCallbackPanic
			}
		}()
		done <- cb()
	}()

	select {
	case err := <-done:
		if err != nil {
			m.callbackFailures.Add(1)
			m.logger.ErrorCtx(context.Background(), "shutdown callback failed",
				"run_id", m.runID, "phase", "shutdown", "callback_index", index, "cause", err.Error())
		}
	case <-time.After(perCallbackTimeout):
		m.callbackFailures.Add(1)
		m.logger.ErrorCtx(context.Background(), "shutdown callback timed out",
			"run_id", m.runID, "phase", "shutdown", "callback_index", index, "cause", "timeout")
	}
}

var errCallbackPanic = shutdownCallbackError("shutdown callback panicked")

type shutdownCallbackError string

func (e shutdownCallbackError) Error() string { return string(e) }
