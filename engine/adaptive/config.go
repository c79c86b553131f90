// Package adaptive implements the closed-loop TPS controller: a pattern
// that reads live failure-rate and backpressure signals and cycles through
// RAMP_UP / RAMP_DOWN / SUSTAIN / COMPLETE phases with hysteresis, instead
// of driving a fixed schedule.
package adaptive

import (
	"fmt"
	"time"
)

// infiniteDuration mirrors the engine package's open-ended-pattern sentinel.
// Duplicated here rather than imported to keep this package free of any
// dependency on engine (it is consumed structurally as an engine.LoadPattern).
const infiniteDuration = time.Duration(1<<63 - 1)

// Config is the immutable, builder-validated configuration for an
// AdaptiveLoadPattern.
type Config struct {
	InitialTPS             float64
	MinTPS                  float64
	MaxTPS                  float64
	RampIncrement           float64
	RampDecrement           float64
	RampInterval            time.Duration
	SustainDuration         time.Duration
	StableIntervalsRequired int
}

// Validate enforces the data-model invariants: 0 < minTps <= initialTps <=
// maxTps; increments > 0; stableIntervalsRequired >= 1; rampInterval > 0.
func (c Config) Validate() error {
	if c.MinTPS <= 0 {
		return fmt.Errorf("adaptive: minTps must be > 0, got %v", c.MinTPS)
	}
	if c.MinTPS > c.InitialTPS {
		return fmt.Errorf("adaptive: minTps (%v) must be <= initialTps (%v)", c.MinTPS, c.InitialTPS)
	}
	if c.InitialTPS > c.MaxTPS {
		return fmt.Errorf("adaptive: initialTps (%v) must be <= maxTps (%v)", c.InitialTPS, c.MaxTPS)
	}
	if c.RampIncrement <= 0 {
		return fmt.Errorf("adaptive: rampIncrement must be > 0")
	}
	if c.RampDecrement <= 0 {
		return fmt.Errorf("adaptive: rampDecrement must be > 0")
	}
	if c.StableIntervalsRequired < 1 {
		return fmt.Errorf("adaptive: stableIntervalsRequired must be >= 1")
	}
	if c.RampInterval <= 0 {
		return fmt.Errorf("adaptive: rampInterval must be > 0")
	}
	return nil
}

// DefaultConfig returns reasonable starting parameters; callers should
// override InitialTPS/MaxTPS/etc for their scenario.
func DefaultConfig() Config {
	return Config{
		InitialTPS:              10,
		MinTPS:                  5,
		MaxTPS:                  200,
		RampIncrement:           10,
		RampDecrement:           20,
		RampInterval:            500 * time.Millisecond,
		SustainDuration:         30 * time.Second,
		StableIntervalsRequired: 2,
	}
}
