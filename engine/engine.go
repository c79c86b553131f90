// Package engine implements VajraPulse's execution core: the scheduler
// that paces task submissions against a LoadPattern's target TPS, runs
// each invocation on its own lightweight unit of concurrency, and feeds
// outcomes into the metrics feedback channel.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"vajrapulse/engine/adaptive"
	"vajrapulse/engine/metrics"
	"vajrapulse/engine/telemetry"
)

// adaptiveRegistrar is the optional capability an adaptive-variant
// LoadPattern exposes. The engine probes for it exactly once, at
// construction, rather than case-analyzing LoadPattern's concrete type.
type adaptiveRegistrar interface {
	RegisterListener(l adaptive.PhaseListener)
}

// loggerSetter is the optional capability a LoadPattern exposes to receive
// the engine's structured logger, probed once at construction just like
// adaptiveRegistrar.
type loggerSetter interface {
	SetLogger(l telemetry.Logger)
}

// ExecutionEngine is the top-level orchestrator: it owns the submission
// loop, the lifecycle state machine, the metrics collector, the rate
// controller, and shutdown.
type ExecutionEngine struct {
	cfg     Config
	runCtx  RunContext
	state   engineState
	started atomic.Bool

	collector *metrics.Collector
	adapter   *metrics.ProviderAdapter

	rateController *RateController
	shutdownMgr    *ShutdownManager

	inFlight atomic.Int64
	dropped  atomic.Int64
	wg       sync.WaitGroup

	adaptivePhase atomic.Pointer[string]
	adaptiveTPS   atomic.Value // float64

	logger telemetry.Logger

	sigStop chan struct{}
}

// New validates cfg and constructs an ExecutionEngine ready for Run. It
// does not start anything: no goroutines, no signal handler, no clock
// reads beyond what RunContext needs.
func New(cfg Config) (*ExecutionEngine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Percentiles = normalizePercentiles(cfg.Percentiles)
	if cfg.Logger == nil {
		cfg.Logger = telemetry.New(nil)
	}

	runCtx := newRunContext()
	collector := metrics.NewCollector(runCtx.RunID, cfg.Percentiles, cfg.RecentWindow)
	adapter := metrics.NewProviderAdapter(collector, cfg.CacheTTL)

	if cfg.Pattern == nil {
		pattern, err := cfg.PatternFactory(adapter)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern factory: %v", ErrValidation, err)
		}
		cfg.Pattern = pattern
	}

	e := &ExecutionEngine{
		cfg:       cfg,
		runCtx:    runCtx,
		collector: collector,
		adapter:   adapter,
		logger:    cfg.Logger,
	}
	e.adaptiveTPS.Store(float64(0))

	if ls, ok := cfg.Pattern.(loggerSetter); ok {
		ls.SetLogger(cfg.Logger)
	}
	if reg, ok := cfg.Pattern.(adaptiveRegistrar); ok {
		reg.RegisterListener(&engineAdaptiveListener{engine: e})
	}

	return e, nil
}

// MetricsProvider exposes the cached read-only view, e.g. for a caller
// wiring their own AdaptiveLoadPattern against this engine's collector.
func (e *ExecutionEngine) MetricsProvider() metrics.Provider { return e.adapter }

// RunContext returns the run's stable identity and start time.
func (e *ExecutionEngine) RunContext() RunContext { return e.runCtx }

// State returns the current lifecycle state.
func (e *ExecutionEngine) State() State { return e.state.load() }

// Stop requests a graceful shutdown; safe to call from any goroutine,
// including an installed OS-signal handler, and safe to call more than
// once.
func (e *ExecutionEngine) Stop() {
	if e.shutdownMgr != nil {
		e.shutdownMgr.Close()
	}
}

// Run executes the submission loop until the pattern's declared duration
// elapses, the pattern signals terminal (target TPS <= 0), or Stop is
// called. Run is single-shot: a second call returns ErrInvalidState.
func (e *ExecutionEngine) Run(ctx context.Context) (metrics.AggregatedMetrics, error) {
	if !e.started.CompareAndSwap(false, true) {
		return metrics.AggregatedMetrics{}, fmt.Errorf("%w: Run already invoked", ErrInvalidState)
	}
	if !e.state.cas(StateIdle, StateRunning) {
		return metrics.AggregatedMetrics{}, fmt.Errorf("%w: engine not IDLE", ErrInvalidState)
	}

	e.rateController = NewRateController(e.runCtx.StartTime)
	e.shutdownMgr = NewShutdownManager(&e.state, &e.inFlight, e.cfg.DrainTimeout, e.cfg.ForceTimeout)
	e.shutdownMgr.SetLogger(e.logger)
	e.shutdownMgr.SetRunID(e.runCtx.RunID)
	e.shutdownMgr.RegisterCallback(func() error {
		e.cfg.Task.Teardown(context.Background())
		return nil
	})

	if err := e.cfg.Task.Init(ctx); err != nil {
		e.state.cas(StateRunning, StateStopped)
		return metrics.AggregatedMetrics{}, fmt.Errorf("%w: task init failed: %v", ErrInvalidState, err)
	}

	if e.cfg.InstallSignalHandler {
		e.installSignalHandler()
		defer e.removeSignalHandler()
	}

	e.submissionLoop(ctx)

	e.shutdownMgr.Close()
	e.wg.Wait()

	return e.Snapshot().Metrics, nil
}

func (e *ExecutionEngine) installSignalHandler() {
	e.sigStop = make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			e.Stop()
		case <-e.sigStop:
		}
	}()
}

func (e *ExecutionEngine) removeSignalHandler() {
	if e.sigStop != nil {
		close(e.sigStop)
	}
}

// submissionLoop implements spec's per-tick dispatch: consult the
// pattern, pace via RateController, dispatch a lightweight unit per
// submission, and exit on terminal pattern signal or interrupt.
func (e *ExecutionEngine) submissionLoop(ctx context.Context) {
	var iteration int64
	interrupt := e.shutdownMgr.Interrupt()

	for {
		if e.state.load() != StateRunning {
			return
		}

		elapsed := time.Since(e.runCtx.StartTime)
		if elapsed >= e.cfg.Pattern.TotalDuration() {
			return
		}

		target := e.cfg.Pattern.TargetTPS(elapsed)
		if target <= 0 {
			return
		}

		switch e.rateController.WaitForNext(target, interrupt) {
		case WaitInterrupted:
			return
		case WaitTerminal:
			return
		}

		record := e.cfg.Pattern.ShouldRecordMetrics(elapsed)
		e.dispatch(ctx, iteration, record)
		iteration++
	}
}

// dispatch runs one task invocation on its own goroutine — the engine
// does not size a fixed worker pool; it relies on the runtime scheduler
// for the expected 10^4-10^5 concurrent in-flight units.
func (e *ExecutionEngine) dispatch(ctx context.Context, iteration int64, record bool) {
	if e.state.load() != StateRunning {
		e.dropped.Add(1)
		return
	}

	e.inFlight.Add(1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				cause := fmt.Sprintf("panic: %v", r)
				if record {
					e.collector.RecordFailure(0, cause)
				}
				e.logger.ErrorCtx(ctx, "task execution panicked",
					"run_id", e.runCtx.RunID, "iteration", iteration, "cause", cause)
			}
		}()

		start := time.Now()
		result := e.cfg.Task.Execute(ctx, iteration)
		latency := time.Since(start)

		if !record {
			return
		}
		if result.Ok {
			e.collector.RecordSuccess(latency)
		} else {
			e.collector.RecordFailure(latency, result.Cause)
		}
	}()
}

// Snapshot assembles the current Snapshot: metrics, run context, engine
// state, and (when the configured pattern is adaptive) the live phase/TPS.
func (e *ExecutionEngine) Snapshot() Snapshot {
	sysInfo := map[string]string{
		"goVersion": e.runCtx.SystemInfo.GoVersion,
		"os":        e.runCtx.SystemInfo.OS,
		"arch":      e.runCtx.SystemInfo.Arch,
	}

	m := e.collector.Snapshot(sysInfo)
	if e.rateController != nil && e.cfg.Pattern != nil {
		target := e.cfg.Pattern.TargetTPS(time.Since(e.runCtx.StartTime))
		actual := e.rateController.ActualTPS()
		m.TargetTPS = target
		m.ActualTPS = actual
		m.TPSError = TPSError(actual, target)
	}

	snap := Snapshot{
		Metrics:    m,
		RunContext: e.runCtx,
		State:      e.state.load(),
	}
	if phase := e.adaptivePhase.Load(); phase != nil {
		snap.AdaptivePhase = *phase
		if v, ok := e.adaptiveTPS.Load().(float64); ok {
			snap.AdaptiveTPS = v
		}
	}
	return snap
}

// DroppedSubmissions counts work the engine declined to dispatch because
// it was no longer RUNNING (draining or stopped).
func (e *ExecutionEngine) DroppedSubmissions() int64 { return e.dropped.Load() }

// Snapshot is the external, read-only view of engine state at a point in
// time.
type Snapshot struct {
	Metrics       metrics.AggregatedMetrics
	RunContext    RunContext
	State         State
	AdaptivePhase string
	AdaptiveTPS   float64
}

// engineAdaptiveListener bridges adaptive.PhaseListener notifications into
// the engine's Snapshot fields; it is the one place the engine is aware an
// adaptive pattern exists.
type engineAdaptiveListener struct {
	engine *ExecutionEngine
}

func (l *engineAdaptiveListener) OnPhaseChange(old, new adaptive.Phase) {
	phase := new.String()
	l.engine.adaptivePhase.Store(&phase)
}

func (l *engineAdaptiveListener) OnTPSAdjusted(oldTPS, newTPS float64) {
	l.engine.adaptiveTPS.Store(newTPS)
}
