package engine

import (
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"vajrapulse/engine/metrics"
	"vajrapulse/engine/telemetry"
)

// Config is the public configuration surface for ExecutionEngine. It is a
// value type: once passed to New, it is never mutated.
type Config struct {
	// Task is required; New returns ErrValidation without it.
	Task TaskLifecycle

	// Pattern is required unless PatternFactory is set. Set Pattern
	// directly for Static/RampUp/RampUpSustain/WarmupCooldown variants.
	Pattern LoadPattern

	// PatternFactory builds the pattern from the engine's own
	// MetricsProviderAdapter, resolved once inside New before the pattern
	// is required to be non-nil. Use this to wire an AdaptiveLoadPattern
	// against the same collector the engine will record into — the
	// pattern cannot be constructed before the engine exists, since it
	// reads from the engine's collector. Ignored if Pattern is already set.
	PatternFactory func(provider metrics.Provider) (LoadPattern, error)

	// Percentiles requested for latency reporting, e.g. []float64{0.5,0.9,0.99}.
	// Normalized (rounded to 3dp, deduplicated, sorted ascending) at New().
	Percentiles []float64

	// RecentWindow controls the recentFailureRate bucket span.
	RecentWindow time.Duration

	// DrainTimeout / ForceTimeout feed ShutdownManager. Zero falls back to
	// engine defaults.
	DrainTimeout time.Duration
	ForceTimeout time.Duration

	// InstallSignalHandler opts into an OS INT/TERM handler that triggers
	// graceful shutdown. Tests should leave this false.
	InstallSignalHandler bool

	// CacheTTL is the MetricsProviderAdapter refresh window.
	CacheTTL time.Duration

	// Logger receives structured records for shutdown-callback failures,
	// adaptive-listener panics, and task panics. A nil Logger falls back to
	// a slog.Default()-backed telemetry.Logger. Exporter failures are logged
	// by exporter.Reporter through its own logger.
	Logger telemetry.Logger
}

// Defaults returns a Config with the engine's standard operating parameters.
// Task and Pattern are left nil; callers must set them before New().
func Defaults() Config {
	return Config{
		Percentiles:  []float64{0.5, 0.9, 0.95, 0.99},
		RecentWindow: 10 * time.Second,
		DrainTimeout: DefaultDrainTimeout,
		ForceTimeout: DefaultForceTimeout,
		CacheTTL:     100 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.Task == nil {
		return fmt.Errorf("%w: task is required", ErrValidation)
	}
	if c.Pattern == nil && c.PatternFactory == nil {
		return fmt.Errorf("%w: pattern or patternFactory is required", ErrValidation)
	}
	return nil
}

func normalizePercentiles(in []float64) []float64 {
	if len(in) == 0 {
		return []float64{0.5, 0.9, 0.99}
	}
	seen := make(map[float64]struct{}, len(in))
	out := make([]float64, 0, len(in))
	for _, p := range in {
		rounded := roundTo3dp(p)
		if _, dup := seen[rounded]; dup {
			continue
		}
		seen[rounded] = struct{}{}
		out = append(out, rounded)
	}
	sortFloat64s(out)
	return out
}

func roundTo3dp(v float64) float64 {
	const scale = 1000.0
	if v < 0 {
		return 0
	}
	return float64(int64(v*scale+0.5)) / scale
}

func sortFloat64s(s []float64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// SystemInfo captures the run-host facts attached to RunContext, mirrored
// into every AggregatedMetrics snapshot for downstream exporters.
type SystemInfo struct {
	GoVersion string
	NumCPU    int
	OS        string
	Arch      string
}

func currentSystemInfo() SystemInfo {
	return SystemInfo{
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RunContext is immutable for the lifetime of a run: a stable identifier,
// the wall-clock start time, and the host's SystemInfo.
type RunContext struct {
	RunID      string
	StartTime  time.Time
	SystemInfo SystemInfo
}

func newRunContext() RunContext {
	return RunContext{
		RunID:      uuid.NewString(),
		StartTime:  time.Now(),
		SystemInfo: currentSystemInfo(),
	}
}
