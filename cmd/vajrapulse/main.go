// Command vajrapulse drives VajraPulse's ExecutionEngine from the command
// line: it wires a LoadPattern (static, ramp-up, ramp-sustain,
// warmup-cooldown, or adaptive), an example task, and the configured metrics exporters, then
// runs until the pattern completes or a shutdown signal arrives.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vajrapulse/config"
	"vajrapulse/engine"
	"vajrapulse/engine/adaptive"
	"vajrapulse/engine/metrics"
	"vajrapulse/examples/tasks/httptask"
	"vajrapulse/examples/tasks/noop"
	"vajrapulse/exporter"
	otelexp "vajrapulse/exporter/otel"
	promexp "vajrapulse/exporter/prometheus"
)

const (
	exitSuccess       = 0
	exitInvalidConfig = 1
	exitRuntimeError  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		tps              float64
		duration         time.Duration
		loadPatternName  string
		rampDuration     time.Duration
		sustainDuration  time.Duration
		warmupDuration   time.Duration
		cooldownDuration time.Duration
		shutdownTimeout  time.Duration
		forceTimeout     time.Duration
		configPath       string
		metricsAddr      string
		metricsBackend   string
		taskKind         string
		taskURL          string
		snapshotEvery    time.Duration

		minTPS          float64
		maxTPS          float64
		rampIncrement   float64
		rampDecrement   float64
		rampInterval    time.Duration
		stableIntervals int
		errorThreshold  float64
	)

	flag.Float64Var(&tps, "tps", 100, "target transactions per second")
	flag.DurationVar(&duration, "duration", 30*time.Second, "run duration for static/ramp-up patterns")
	flag.StringVar(&loadPatternName, "load-pattern", "static", "static|ramp-up|ramp-sustain|warmup-cooldown|adaptive")
	flag.DurationVar(&rampDuration, "ramp-duration", 10*time.Second, "ramp phase duration for ramp-up/ramp-sustain")
	flag.DurationVar(&sustainDuration, "sustain-duration", 30*time.Second, "sustain phase duration for ramp-sustain/adaptive")
	flag.DurationVar(&warmupDuration, "warmup-duration", 5*time.Second, "warmup phase duration for warmup-cooldown (results discarded)")
	flag.DurationVar(&cooldownDuration, "cooldown-duration", 5*time.Second, "cooldown phase duration for warmup-cooldown (results discarded)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", engine.DefaultDrainTimeout, "graceful drain timeout")
	flag.DurationVar(&forceTimeout, "force-timeout", engine.DefaultForceTimeout, "forced termination timeout after drain expires")
	flag.StringVar(&configPath, "config", "", "optional YAML config file; replaces the run, pattern, shutdown and adaptive flags above")
	flag.StringVar(&metricsAddr, "metrics", "", "expose /metrics on this address, e.g. :9090 (prometheus backend only)")
	flag.StringVar(&metricsBackend, "metrics-backend", "prometheus", "prometheus|otel|noop")
	flag.StringVar(&taskKind, "task", "noop", "noop|http")
	flag.StringVar(&taskURL, "url", "", "target URL when -task=http")
	flag.StringVar(&taskURL, "task-url", "", "alias for -url")
	flag.DurationVar(&snapshotEvery, "snapshot-interval", 5*time.Second, "interval between stderr snapshot prints (0=disabled)")

	flag.Float64Var(&minTPS, "min-tps", 5, "adaptive: lower TPS bound")
	flag.Float64Var(&maxTPS, "max-tps", 200, "adaptive: upper TPS bound")
	flag.Float64Var(&rampIncrement, "ramp-increment", 10, "adaptive: TPS added per stable interval")
	flag.Float64Var(&rampDecrement, "ramp-decrement", 20, "adaptive: TPS removed on backpressure")
	flag.DurationVar(&rampInterval, "ramp-interval", 500*time.Millisecond, "adaptive: interval between ramp decisions")
	flag.IntVar(&stableIntervals, "stable-intervals", 2, "adaptive: consecutive stable intervals required before leaving ramp-down for sustain")
	flag.Float64Var(&errorThreshold, "error-threshold", 0.01, "adaptive: failure rate that forces a ramp-down")
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return exitSuccess
		}
		return exitInvalidConfig
	}

	runCfg := config.Defaults()
	runCfg.TPS = tps
	runCfg.Duration = config.Duration(duration)
	runCfg.LoadPattern = loadPatternName
	runCfg.RampDuration = config.Duration(rampDuration)
	runCfg.SustainDuration = config.Duration(sustainDuration)
	runCfg.WarmupDuration = config.Duration(warmupDuration)
	runCfg.CooldownDuration = config.Duration(cooldownDuration)
	runCfg.Shutdown.DrainTimeout = config.Duration(shutdownTimeout)
	runCfg.Shutdown.ForceTimeout = config.Duration(forceTimeout)
	runCfg.Adaptive.MinTPS = minTPS
	runCfg.Adaptive.MaxTPS = maxTPS
	runCfg.Adaptive.RampIncrement = rampIncrement
	runCfg.Adaptive.RampDecrement = rampDecrement
	runCfg.Adaptive.RampInterval = config.Duration(rampInterval)
	runCfg.Adaptive.SustainDuration = config.Duration(sustainDuration)
	runCfg.Adaptive.StableIntervalsRequired = stableIntervals
	runCfg.Adaptive.ErrorThreshold = errorThreshold

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Printf("load config: %v", err)
			return exitInvalidConfig
		}
		runCfg = loaded
	}

	task, err := buildTask(taskKind, taskURL)
	if err != nil {
		log.Printf("invalid task configuration: %v", err)
		return exitInvalidConfig
	}

	cfg := engine.Defaults()
	cfg.Task = task
	cfg.Percentiles = runCfg.Thresholds.Percentiles
	cfg.DrainTimeout = runCfg.Shutdown.DrainTimeout.AsDuration()
	cfg.ForceTimeout = runCfg.Shutdown.ForceTimeout.AsDuration()
	cfg.InstallSignalHandler = false // this CLI installs its own, force-exit-capable handler

	if runCfg.LoadPattern == "adaptive" {
		cfg.PatternFactory = func(provider metrics.Provider) (engine.LoadPattern, error) {
			return buildAdaptivePattern(runCfg, provider)
		}
	} else {
		pattern, err := buildPattern(runCfg)
		if err != nil {
			log.Printf("invalid load pattern configuration: %v", err)
			return exitInvalidConfig
		}
		cfg.Pattern = pattern
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Printf("create engine: %v", err)
		return exitInvalidConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		eng.Stop()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(exitRuntimeError)
	}()

	metricsExporter, httpHandler, err := buildMetricsExporter(metricsBackend)
	if err != nil {
		log.Printf("invalid metrics backend: %v", err)
		return exitInvalidConfig
	}

	var reporter *exporter.Reporter
	if metricsExporter != nil {
		reporter = exporter.NewReporter(5*time.Second, metricsExporter)
		reporter.Start(func() (metrics.AggregatedMetrics, engine.RunContext) {
			snap := eng.Snapshot()
			return snap.Metrics, snap.RunContext
		})
	}
	if httpHandler != nil && metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", httpHandler)
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			log.Printf("metrics listening on %s", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}
	if reporter != nil {
		defer reporter.Stop()
	}

	var ticker *time.Ticker
	done := make(chan struct{})
	if snapshotEvery > 0 {
		ticker = time.NewTicker(snapshotEvery)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ticker.C:
					printSnapshot(eng)
				case <-done:
					return
				}
			}
		}()
	}

	_, err = eng.Run(ctx)
	close(done)

	printSnapshot(eng)

	if err != nil {
		log.Printf("run failed: %v", err)
		return exitRuntimeError
	}
	return exitSuccess
}

func buildTask(kind, url string) (engine.TaskLifecycle, error) {
	switch kind {
	case "", "noop":
		return noop.Task{}, nil
	case "http":
		if url == "" {
			return nil, fmt.Errorf("-url is required when -task=http")
		}
		return &httptask.Task{URL: url}, nil
	default:
		return nil, fmt.Errorf("unknown task kind %q", kind)
	}
}

func buildPattern(cfg config.RunConfig) (engine.LoadPattern, error) {
	switch cfg.LoadPattern {
	case "", "static":
		return engine.NewStaticLoadPattern(cfg.TPS, cfg.Duration.AsDuration()), nil
	case "ramp-up":
		return engine.NewRampUpLoadPattern(0, cfg.TPS, cfg.RampDuration.AsDuration(), cfg.Duration.AsDuration()), nil
	case "ramp-sustain":
		return engine.NewRampUpSustainLoadPattern(0, cfg.TPS, cfg.RampDuration.AsDuration(), cfg.SustainDuration.AsDuration()), nil
	case "warmup-cooldown":
		return engine.NewWarmupCooldownLoadPattern(
			cfg.WarmupDuration.AsDuration(), cfg.TPS, cfg.SustainDuration.AsDuration(), cfg.CooldownDuration.AsDuration()), nil
	case "adaptive":
		return nil, fmt.Errorf("adaptive pattern is resolved via PatternFactory, not buildPattern")
	default:
		return nil, fmt.Errorf("unknown load pattern %q", cfg.LoadPattern)
	}
}

// buildMetricsExporter selects the metrics backend named by the CLI: an
// exporter to feed the Reporter, plus (prometheus only) the HTTP handler to
// serve it on -metrics. "noop" disables metrics export entirely, returning
// (nil, nil, nil).
func buildMetricsExporter(backend string) (exporter.MetricsExporter, http.Handler, error) {
	switch backend {
	case "", "prometheus":
		promExporter := promexp.New()
		return promExporter, promExporter.Handler(), nil
	case "otel":
		otelExporter, err := otelexp.New()
		if err != nil {
			return nil, nil, fmt.Errorf("build otel exporter: %w", err)
		}
		return otelExporter, nil, nil
	case "noop":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics backend %q", backend)
	}
}

// buildAdaptivePattern is invoked through Config.PatternFactory, which
// hands it the engine's own MetricsProviderAdapter — the adaptive
// controller must read from the same collector the engine records into.
func buildAdaptivePattern(cfg config.RunConfig, provider metrics.Provider) (engine.LoadPattern, error) {
	ac := adaptive.Config{
		InitialTPS:              cfg.Adaptive.InitialTPS,
		MinTPS:                  cfg.Adaptive.MinTPS,
		MaxTPS:                  cfg.Adaptive.MaxTPS,
		RampIncrement:           cfg.Adaptive.RampIncrement,
		RampDecrement:           cfg.Adaptive.RampDecrement,
		RampInterval:            cfg.Adaptive.RampInterval.AsDuration(),
		SustainDuration:         cfg.Adaptive.SustainDuration.AsDuration(),
		StableIntervalsRequired: cfg.Adaptive.StableIntervalsRequired,
	}
	policy := adaptive.DefaultRampDecisionPolicy{
		ErrorThreshold:               cfg.Adaptive.ErrorThreshold,
		RampUpBackpressure:           cfg.Adaptive.BackpressureRampUp,
		RampDownBackpressure:         cfg.Adaptive.BackpressureRampDown,
		RecoveryLowBackpressure:      0.3,
		RecoveryModerateBackpressure: 0.5,
	}
	return adaptive.New(ac, provider, nil, policy)
}

func printSnapshot(eng *engine.ExecutionEngine) {
	snap := eng.Snapshot()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(os.Stderr, "\n=== SNAPSHOT %s ===\n%s\n", time.Now().Format(time.RFC3339), string(b))
}
