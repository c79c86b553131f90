// Package config loads VajraPulse's YAML run configuration and watches it
// for changes, following the same load/validate/hot-reload shape used
// throughout the surrounding toolchain: gopkg.in/yaml.v3 for parsing and
// github.com/fsnotify/fsnotify for change detection.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the fixed prefix applied to environment variable overrides,
// read after the YAML file so operators can override a single field
// without editing the file (e.g. VAJRAPULSE_TPS=250).
const EnvPrefix = "VAJRAPULSE_"

// Duration wraps time.Duration so YAML can accept "500ms", "2s", "1m",
// "1h" suffixes directly instead of requiring nanosecond integers.
type Duration time.Duration

func (d Duration) AsDuration() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ThresholdsConfig configures latency percentile reporting.
type ThresholdsConfig struct {
	Percentiles []float64 `yaml:"percentiles"`
}

// ShutdownConfig configures the drain/force shutdown budget.
type ShutdownConfig struct {
	DrainTimeout Duration `yaml:"drainTimeout"`
	ForceTimeout Duration `yaml:"forceTimeout"`
}

// AdaptiveConfig mirrors engine/adaptive.Config in YAML-friendly form.
type AdaptiveConfig struct {
	InitialTPS              float64  `yaml:"initialTps"`
	MaxTPS                  float64  `yaml:"maxTps"`
	MinTPS                  float64  `yaml:"minTps"`
	RampIncrement           float64  `yaml:"rampIncrement"`
	RampDecrement           float64  `yaml:"rampDecrement"`
	RampInterval            Duration `yaml:"rampInterval"`
	SustainDuration         Duration `yaml:"sustainDuration"`
	StableIntervalsRequired int      `yaml:"stableIntervalsRequired"`
	ErrorThreshold          float64  `yaml:"errorThreshold"`
	BackpressureRampUp      float64  `yaml:"backpressureRampUp"`
	BackpressureRampDown    float64  `yaml:"backpressureRampDown"`
}

// RunConfig is the top-level YAML document consumed at startup.
type RunConfig struct {
	TPS         float64          `yaml:"tps"`
	Duration    Duration         `yaml:"duration"`
	LoadPattern string           `yaml:"loadPattern"`
	Thresholds  ThresholdsConfig `yaml:"thresholds"`
	Shutdown    ShutdownConfig   `yaml:"shutdown"`
	Adaptive    AdaptiveConfig   `yaml:"adaptive"`

	RampDuration    Duration `yaml:"rampDuration"`
	SustainDuration Duration `yaml:"sustainDuration"`

	WarmupDuration   Duration `yaml:"warmupDuration"`
	CooldownDuration Duration `yaml:"cooldownDuration"`
}

// Defaults returns a RunConfig with the engine's standard parameters.
func Defaults() RunConfig {
	return RunConfig{
		TPS:         100,
		Duration:    Duration(30 * time.Second),
		LoadPattern: "static",
		Thresholds:  ThresholdsConfig{Percentiles: []float64{0.5, 0.9, 0.95, 0.99}},
		Shutdown: ShutdownConfig{
			DrainTimeout: Duration(5 * time.Second),
			ForceTimeout: Duration(10 * time.Second),
		},
		Adaptive: AdaptiveConfig{
			InitialTPS:              10,
			MaxTPS:                  200,
			MinTPS:                  5,
			RampIncrement:           10,
			RampDecrement:           20,
			RampInterval:            Duration(500 * time.Millisecond),
			SustainDuration:         Duration(30 * time.Second),
			StableIntervalsRequired: 2,
			ErrorThreshold:          0.01,
			BackpressureRampUp:      0.3,
			BackpressureRampDown:    0.7,
		},
	}
}

// Load reads and parses path, falling back to Defaults() for any zero
// fields the file omits, then applies environment variable overrides.
func Load(path string) (RunConfig, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyEnvOverrides scans the process environment for VAJRAPULSE_-prefixed
// variables and overlays the handful of scalar fields operators most
// commonly want to tweak without editing the file.
func applyEnvOverrides(cfg *RunConfig) {
	if v, ok := lookupEnv("TPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TPS = f
		}
	}
	if v, ok := lookupEnv("DURATION"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duration = Duration(d)
		}
	}
	if v, ok := lookupEnv("LOAD_PATTERN"); ok {
		cfg.LoadPattern = v
	}
	if v, ok := lookupEnv("ADAPTIVE_MAX_TPS"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Adaptive.MaxTPS = f
		}
	}
}

func lookupEnv(suffix string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + suffix)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
