package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/Swind/go-interaction-manager/core"
	"github.com/Swind/go-interaction-manager/internal/config"
	"github.com/Swind/go-interaction-manager/internal/sim"
	promexporter "github.com/Swind/go-interaction-manager/observability/prometheus"
	zlog "github.com/Swind/go-interaction-manager/observability/zerolog"
)

// NewRunCommand returns the run subcommand.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Replay the configured scenario and print a report",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "gestures", Usage: "Number of gestures"},
			&cli.IntFlag{Name: "tasks", Usage: "Deferred tasks queued per gesture"},
			&cli.DurationFlag{Name: "hold", Usage: "How long each gesture holds its handle"},
			&cli.DurationFlag{Name: "gap", Usage: "Idle time between gestures"},
			&cli.IntFlag{Name: "fail-every", Usage: "Make every Nth task fail (0 disables)"},
			&cli.StringFlag{Name: "listen", Usage: "Serve Prometheus metrics on this address"},
			&cli.BoolFlag{Name: "json", Usage: "Log as JSON instead of console output"},
			&cli.BoolFlag{Name: "serve", Usage: "Keep serving metrics after the scenario until interrupted"},
			&cli.DurationFlag{Name: "timeout", Usage: "Abort the scenario after this long", Value: time.Minute},
		},
		Action: runScenario,
	}
}

func runScenario(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := newLogger(cfg)
	reporter := core.NewLoggingErrorReporter(logger)

	var metrics core.Metrics
	var poller *promexporter.SnapshotPoller
	var server *http.Server
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		exporter, err := promexporter.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexporter.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics exporter: %w", err)
		}
		metrics = exporter

		poller, err = promexporter.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
		if err != nil {
			return fmt.Errorf("snapshot poller: %w", err)
		}

		if cfg.Metrics.Listen != "" {
			server = serveMetrics(cfg.Metrics.Listen, reg, logger)
			defer shutdownServer(server, logger)
		}
	}

	runner := core.NewSingleThreadTaskRunnerWithReporter(reporter)
	runner.SetName("ui")
	defer runner.Stop()

	opts := cfg.ManagerOptions(logger, metrics)
	opts.ErrorReporter = reporter
	manager := core.NewInteractionManagerWithConfig(runner, opts)
	defer manager.Shutdown()

	if poller != nil {
		poller.AddManager(manager.Name(), manager)
		poller.Start(ctx)
		defer poller.Stop()
	}

	s := cfg.Scenario
	driver := sim.NewDriver(manager, runner, sim.Scenario{
		Gestures:        s.Gestures,
		TasksPerGesture: s.TasksPerGesture,
		Hold:            s.Hold,
		Gap:             s.Gap,
		FailEvery:       s.FailEvery,
	}, logger)

	runCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	report, err := driver.Run(runCtx)
	printReport(cmd, report, manager)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	if report.Violations > 0 {
		return fmt.Errorf("%d tasks ran during an interaction", report.Violations)
	}

	if server != nil && cmd.Bool("serve") {
		logger.Info("serving metrics until interrupted", core.F("listen", cfg.Metrics.Listen))
		if poller != nil {
			poller.CollectOnce()
		}
		<-ctx.Done()
	}
	return nil
}

func applyFlags(cmd *cli.Command, cfg *config.Config) {
	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
	}
	if cmd.Bool("json") {
		cfg.Log.Format = "json"
	}
	if cmd.IsSet("gestures") {
		cfg.Scenario.Gestures = cmd.Int("gestures")
	}
	if cmd.IsSet("tasks") {
		cfg.Scenario.TasksPerGesture = cmd.Int("tasks")
	}
	if cmd.IsSet("hold") {
		cfg.Scenario.Hold = cmd.Duration("hold")
	}
	if cmd.IsSet("gap") {
		cfg.Scenario.Gap = cmd.Duration("gap")
	}
	if cmd.IsSet("fail-every") {
		cfg.Scenario.FailEvery = cmd.Int("fail-every")
	}
	if cmd.IsSet("listen") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = cmd.String("listen")
	}
}

func newLogger(cfg *config.Config) core.Logger {
	if cfg.Log.Format == "json" {
		return zlog.New(os.Stderr, cfg.LogLevel())
	}
	return zlog.NewConsole(os.Stderr, cfg.LogLevel())
}

func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", core.F("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("error", err))
		}
	}()
	return server
}

func shutdownServer(server *http.Server, logger core.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", core.F("error", err))
	}
}

func printReport(cmd *cli.Command, report sim.Report, manager *core.InteractionManager) {
	w := cmd.Root().Writer
	for _, step := range report.Steps {
		fmt.Fprintf(w, "%8s  %-14s %s\n", step.At.Truncate(time.Millisecond), step.Kind, step.Detail)
	}
	stats := manager.Stats()
	fmt.Fprintf(w, "\nstarts=%d completes=%d tasks=%d failed=%d violations=%d passes=%d elapsed=%s\n",
		report.Starts, report.Completes, report.TasksRun, report.TasksFailed, report.Violations,
		stats.Passes, report.Elapsed.Truncate(time.Millisecond))
}
