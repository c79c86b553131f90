package adaptive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"vajrapulse/engine/metrics"
	"vajrapulse/engine/telemetry"
)

// LoadPattern is the closed-loop variant: it reads a metrics.Provider (and
// optionally a BackpressureProvider) instead of following a fixed
// schedule, converging on the highest TPS the system sustains without
// elevated failures or saturation.
//
// It satisfies the engine package's LoadPattern capability structurally —
// this package never imports engine, breaking what would otherwise be an
// ownership cycle (engine -> adaptive -> engine).
type LoadPattern struct {
	cfg          Config
	provider     metrics.Provider
	backpressure BackpressureProvider
	policy       RampDecisionPolicy

	state atomic.Pointer[State]

	listenersMu      sync.RWMutex
	listeners        []PhaseListener
	listenerFailures atomic.Int64

	logger telemetry.Logger
}

// New builds an AdaptiveLoadPattern. backpressure may be nil (treated as
// constant 0). A nil policy falls back to NewDefaultRampDecisionPolicy.
func New(cfg Config, provider metrics.Provider, backpressure BackpressureProvider, policy RampDecisionPolicy) (*LoadPattern, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		policy = NewDefaultRampDecisionPolicy()
	}
	p := &LoadPattern{cfg: cfg, provider: provider, backpressure: backpressure, policy: policy, logger: telemetry.New(nil)}
	p.state.Store(&State{
		CurrentTPS:       cfg.InitialTPS,
		Phase:            PhaseRampUp,
		LastAdjustment:   0,
		StableCount:      0,
		LastKnownGoodTPS: cfg.InitialTPS,
		PhaseEntry:       0,
	})
	return p, nil
}

// SetLogger overrides the structured logger used for listener-panic
// reporting. Probed and called by the engine at construction if the
// resolved LoadPattern supports it.
func (p *LoadPattern) SetLogger(logger telemetry.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// RegisterListener subscribes a best-effort phase/TPS observer.
func (p *LoadPattern) RegisterListener(l PhaseListener) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = append(p.listeners, l)
}

// ListenerFailures reports how many listener callbacks panicked.
func (p *LoadPattern) ListenerFailures() int64 { return p.listenerFailures.Load() }

// Snapshot returns the current controller state (read-only copy).
func (p *LoadPattern) Snapshot() State { return *p.state.Load() }

// TargetTPS implements the LoadPattern capability: on each call, if
// rampInterval has elapsed since the last adjustment, it recomputes phase
// and TPS via compare-and-swap retry against a pure transition function;
// otherwise it holds the current TPS. The hot path takes no mutex.
func (p *LoadPattern) TargetTPS(elapsed time.Duration) float64 {
	for {
		old := p.state.Load()
		if old.Phase == PhaseComplete {
			return 0
		}
		if elapsed-old.LastAdjustment < p.cfg.RampInterval {
			return old.CurrentTPS
		}

		snap := p.readSnapshot()
		next := transition(p.cfg, p.policy, old, elapsed, snap)

		if p.state.CompareAndSwap(old, next) {
			p.notify(old, next)
			if next.Phase == PhaseComplete {
				return 0
			}
			return next.CurrentTPS
		}
		// Lost the race to a concurrent caller; retry against fresh state.
	}
}

// TotalDuration is open-ended: AdaptiveLoadPattern terminates via its own
// COMPLETE phase, signaled through TargetTPS returning 0, not a fixed wall
// clock the engine can precompute.
func (p *LoadPattern) TotalDuration() time.Duration { return infiniteDuration }

// SupportsWarmupCooldown is always false: the adaptive controller has no
// distinct warmup/cooldown phases of its own.
func (p *LoadPattern) SupportsWarmupCooldown() bool { return false }

// ShouldRecordMetrics is always true while the pattern is live; COMPLETE is
// terminal and the engine stops submitting before this would matter.
func (p *LoadPattern) ShouldRecordMetrics(time.Duration) bool { return true }

func (p *LoadPattern) readSnapshot() MetricsSnapshot {
	bp := 0.0
	if p.backpressure != nil {
		bp = clamp01(p.backpressure.Backpressure())
	}
	return MetricsSnapshot{
		FailureRate:       clamp01(p.provider.FailureRate()),
		RecentFailureRate: clamp01(p.provider.RecentFailureRate()),
		Backpressure:      bp,
		TotalExecutions:   p.provider.TotalExecutions(),
	}
}

func (p *LoadPattern) notify(old, next *State) {
	if old.Phase == next.Phase && old.CurrentTPS == next.CurrentTPS {
		return
	}
	p.listenersMu.RLock()
	listeners := make([]PhaseListener, len(p.listeners))
	copy(listeners, p.listeners)
	p.listenersMu.RUnlock()

	for _, l := range listeners {
		p.dispatch(l, old, next)
	}
}

func (p *LoadPattern) dispatch(l PhaseListener, old, next *State) {
	defer func() {
		if r := recover(); r != nil {
			p.listenerFailures.Add(1)
			p.logger.ErrorCtx(context.Background(), "adaptive phase listener panicked",
				"phase", next.Phase.String(), "current_tps", next.CurrentTPS, "cause", r)
		}
	}()
	if old.Phase != next.Phase {
		l.OnPhaseChange(old.Phase, next.Phase)
	}
	if old.CurrentTPS != next.CurrentTPS {
		l.OnTPSAdjusted(old.CurrentTPS, next.CurrentTPS)
	}
}

// transition is the pure phase/TPS decision function, split out from
// TargetTPS so it can be exercised directly in tests without a clock or a
// live metrics provider.
func transition(cfg Config, policy RampDecisionPolicy, old *State, elapsed time.Duration, snap MetricsSnapshot) *State {
	switch old.Phase {
	case PhaseRampUp:
		return transitionFromRampUp(cfg, policy, old, elapsed, snap)
	case PhaseRampDown:
		return transitionFromRampDown(cfg, policy, old, elapsed, snap)
	case PhaseSustain:
		return transitionFromSustain(cfg, policy, old, elapsed, snap)
	default: // PhaseComplete is terminal
		return old
	}
}

func transitionFromRampUp(cfg Config, policy RampDecisionPolicy, old *State, elapsed time.Duration, snap MetricsSnapshot) *State {
	if policy.ShouldRampDown(snap) {
		lastGood := maxF(cfg.MinTPS, old.CurrentTPS-cfg.RampIncrement)
		newTPS := maxF(cfg.MinTPS, old.CurrentTPS-cfg.RampDecrement)
		return &State{CurrentTPS: newTPS, Phase: PhaseRampDown, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: lastGood, PhaseEntry: elapsed}
	}
	if old.CurrentTPS >= cfg.MaxTPS {
		return &State{CurrentTPS: old.CurrentTPS, Phase: PhaseSustain, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: elapsed}
	}
	if policy.ShouldRampUp(snap) {
		newTPS := minF(cfg.MaxTPS, old.CurrentTPS+cfg.RampIncrement)
		return &State{CurrentTPS: newTPS, Phase: PhaseRampUp, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: old.PhaseEntry}
	}
	return &State{CurrentTPS: old.CurrentTPS, Phase: PhaseRampUp, LastAdjustment: elapsed, StableCount: old.StableCount, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: old.PhaseEntry}
}

func transitionFromRampDown(cfg Config, policy RampDecisionPolicy, old *State, elapsed time.Duration, snap MetricsSnapshot) *State {
	if old.CurrentTPS <= cfg.MinTPS && policy.CanRecoverFromMinimum(snap) {
		newTPS := minF(cfg.MaxTPS, cfg.MinTPS+cfg.RampIncrement)
		return &State{CurrentTPS: newTPS, Phase: PhaseRampUp, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: elapsed}
	}

	if !policy.ShouldRampDown(snap) {
		stable := old.StableCount + 1
		if stable >= cfg.StableIntervalsRequired {
			return &State{CurrentTPS: old.LastKnownGoodTPS, Phase: PhaseSustain, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: elapsed}
		}
		return &State{CurrentTPS: old.CurrentTPS, Phase: PhaseRampDown, LastAdjustment: elapsed, StableCount: stable, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: old.PhaseEntry}
	}

	newTPS := maxF(cfg.MinTPS, old.CurrentTPS-cfg.RampDecrement)
	return &State{CurrentTPS: newTPS, Phase: PhaseRampDown, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: old.PhaseEntry}
}

func transitionFromSustain(cfg Config, policy RampDecisionPolicy, old *State, elapsed time.Duration, snap MetricsSnapshot) *State {
	if policy.ShouldRampDown(snap) {
		lastGood := maxF(cfg.MinTPS, old.CurrentTPS-cfg.RampIncrement)
		newTPS := maxF(cfg.MinTPS, old.CurrentTPS-cfg.RampDecrement)
		return &State{CurrentTPS: newTPS, Phase: PhaseRampDown, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: lastGood, PhaseEntry: elapsed}
	}
	if elapsed-old.PhaseEntry >= cfg.SustainDuration {
		return &State{CurrentTPS: 0, Phase: PhaseComplete, LastAdjustment: elapsed, StableCount: 0, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: elapsed}
	}
	return &State{CurrentTPS: old.CurrentTPS, Phase: PhaseSustain, LastAdjustment: elapsed, StableCount: old.StableCount, LastKnownGoodTPS: old.LastKnownGoodTPS, PhaseEntry: old.PhaseEntry}
}
