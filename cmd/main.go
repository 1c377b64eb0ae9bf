package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l0p7/usercheck/internal/config"
	"github.com/l0p7/usercheck/internal/contract"
	"github.com/l0p7/usercheck/internal/harness"
	"github.com/l0p7/usercheck/internal/logging"
	"github.com/l0p7/usercheck/internal/metrics"
	"github.com/l0p7/usercheck/internal/monitor"
	"github.com/l0p7/usercheck/internal/reqresfake"
	"github.com/l0p7/usercheck/internal/scenarios"
	"github.com/l0p7/usercheck/internal/server"
	"github.com/l0p7/usercheck/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
)

const (
	exitOK       = 0
	exitFailures = 1
	exitConfig   = 2
)

type options struct {
	configFile  string
	envPrefix   string
	envFiles    []string
	format      string
	output      string
	include     []string
	exclude     []string
	observe     bool
	fake        bool
	monitor     bool
	printSchema bool
}

type scenarioWatcher interface {
	Stop()
}

type configLoader interface {
	Load(context.Context) (config.Config, error)
	WatchScenarios(context.Context, config.Config, func(config.ScenarioBundle), func(error)) (scenarioWatcher, error)
}

type runnableServer interface {
	Run(context.Context) error
}

type loaderAdapter struct {
	*config.Loader
}

func (l loaderAdapter) WatchScenarios(ctx context.Context, cfg config.Config, onChange func(config.ScenarioBundle), onError func(error)) (scenarioWatcher, error) {
	return l.Loader.WatchScenarios(ctx, cfg, onChange, onError)
}

var newConfigLoader = func(envPrefix, configFile string, dotenv []string) configLoader {
	return loaderAdapter{config.NewLoader(envPrefix, configFile).WithDotenv(dotenv...)}
}

var newHTTPServer = func(listen config.ListenConfig, logger *slog.Logger, handler http.Handler) (runnableServer, error) {
	return server.New(listen, logger, handler)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("usercheck", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configFile, "config", "c", "", "path to configuration file (yaml, json or toml)")
	fs.StringVar(&opts.envPrefix, "env-prefix", "USERCHECK", "environment variable prefix")
	fs.StringArrayVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv file read before the environment; repeatable")
	fs.StringVarP(&opts.format, "format", "f", "", "report format: text or json")
	fs.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	fs.StringSliceVar(&opts.include, "include", nil, "run only scenarios with these names or tags")
	fs.StringSliceVar(&opts.exclude, "exclude", nil, "skip scenarios with these names or tags")
	fs.BoolVar(&opts.observe, "observe", false, "also run observation probes")
	fs.BoolVar(&opts.fake, "fake", false, "run against an in-process fake of the users API")
	fs.BoolVar(&opts.monitor, "monitor", false, "run continuously and serve health, reports and metrics")
	fs.BoolVar(&opts.printSchema, "print-schema", false, "print the JSON schema of scenario files and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return opts, nil
}

// applyOverrides lets flags win over every configuration layer.
func applyOverrides(cfg *config.Config, opts options) {
	if opts.format != "" {
		cfg.Report.Format = opts.format
	}
	if opts.output != "" {
		cfg.Report.Output = opts.output
	}
	cfg.Suite.Include = append(cfg.Suite.Include, opts.include...)
	cfg.Suite.Exclude = append(cfg.Suite.Exclude, opts.exclude...)
	if opts.observe {
		cfg.Suite.Observations = true
	}
	if opts.monitor {
		cfg.Monitor.Enabled = true
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "usercheck: %v\n", err)
		return exitConfig
	}

	if opts.printSchema {
		schema, err := config.MarshalScenarioSchema()
		if err != nil {
			fmt.Fprintf(stderr, "usercheck: scenario schema: %v\n", err)
			return exitConfig
		}
		fmt.Fprintln(stdout, string(schema))
		return exitOK
	}

	loader := newConfigLoader(opts.envPrefix, opts.configFile, opts.envFiles)
	cfg, err := loader.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "usercheck: load configuration: %v\n", err)
		return exitConfig
	}
	applyOverrides(&cfg, opts)

	logger, err := logging.New(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "usercheck: configure logger: %v\n", err)
		return exitConfig
	}

	if opts.fake {
		fake := reqresfake.New(reqresfake.Options{
			APIKeyHeader: cfg.Target.APIKeyHeader,
			APIKey:       cfg.Target.APIKey,
		})
		fakeServer := httptest.NewServer(fake)
		defer fakeServer.Close()
		cfg.Target.BaseURL = fakeServer.URL + reqresfake.BasePath
		logger.Info("using in-process fake", slog.String("base_url", cfg.Target.BaseURL))
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		return exitConfig
	}
	for _, skip := range cfg.SkippedDefinitions {
		logger.Warn("scenario definition skipped",
			slog.String("scenario", skip.Name),
			slog.String("reason", skip.Reason),
			slog.Any("sources", skip.Sources),
		)
	}

	suite, err := scenarios.Suite(cfg.Suite, cfg.Scenarios, logger)
	if err != nil {
		logger.Error("scenario setup failed", slog.Any("error", err))
		return exitConfig
	}

	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	runner, err := buildRunner(ctx, cfg, logger, recorder)
	if err != nil {
		logger.Error("harness setup failed", slog.Any("error", err))
		return exitConfig
	}

	if cfg.Monitor.Enabled {
		return runMonitor(ctx, cfg, loader, logger, recorder, runner, suite)
	}

	if len(suite) == 0 {
		logger.Warn("no scenarios selected", slog.Any("include", cfg.Suite.Include), slog.Any("exclude", cfg.Suite.Exclude))
	}
	report := runner.Run(ctx, suite)
	if err := writeReport(report, cfg.Report, stdout); err != nil {
		logger.Error("report output failed", slog.Any("error", err))
		return exitConfig
	}
	writeTextfile(logger, recorder, cfg.Metrics.Textfile)
	if !report.OK() {
		return exitFailures
	}
	return exitOK
}

func buildRunner(ctx context.Context, cfg config.Config, logger *slog.Logger, recorder *metrics.Recorder) (*harness.Runner, error) {
	timeout, err := cfg.Target.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	target, err := harness.NewTarget(harness.TargetOptions{
		BaseURL:      cfg.Target.BaseURL,
		APIKeyHeader: cfg.Target.APIKeyHeader,
		APIKey:       cfg.Target.APIKey,
		Headers:      cfg.Target.Headers,
		Timeout:      timeout,
	})
	if err != nil {
		return nil, err
	}
	runIDs, err := harness.NewRunIDs(1)
	if err != nil {
		return nil, err
	}
	opts := harness.RunnerOptions{Logger: logger, Metrics: recorder, RunIDs: runIDs}
	if cfg.Contract.Enabled {
		validator, err := contract.NewValidator(ctx, target.BaseURL(), cfg.Contract.SpecFile)
		if err != nil {
			return nil, err
		}
		logger.Debug("contract validation enabled", slog.Any("operations", validator.Operations()))
		opts.Validator = validator
	}
	return harness.NewRunner(target, opts), nil
}

func writeReport(report harness.Report, cfg config.ReportConfig, stdout io.Writer) error {
	output := strings.TrimSpace(cfg.Output)
	if output == "" || output == "-" {
		return report.Write(stdout, cfg.Format)
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create report %s: %w", output, err)
	}
	if err := report.Write(f, cfg.Format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeTextfile(logger *slog.Logger, recorder *metrics.Recorder, path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		logger.Error("metrics textfile write failed", slog.Any("error", err))
	}
}

func runMonitor(ctx context.Context, cfg config.Config, loader configLoader, logger *slog.Logger, recorder *metrics.Recorder, runner *harness.Runner, suite []harness.Scenario) int {
	interval, err := cfg.Monitor.IntervalDuration()
	if err != nil {
		logger.Error("invalid monitor interval", slog.Any("error", err))
		return exitConfig
	}

	reportStore := store.Instrument(buildReportStore(logger.With(slog.String("agent", "store_factory")), cfg.Store), recorder)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := reportStore.Close(closeCtx); err != nil {
			logger.Error("report store shutdown failed", slog.Any("error", err))
		}
	}()

	mon, err := monitor.New(runner, monitor.Snapshot{
		Scenarios: suite,
		Sources:   cfg.ScenarioSources,
		Skipped:   cfg.SkippedDefinitions,
	}, monitor.Options{
		Store:    reportStore,
		Metrics:  recorder,
		Logger:   logger,
		Interval: interval,
		OnReport: func(harness.Report) {
			writeTextfile(logger, recorder, cfg.Metrics.Textfile)
		},
	})
	if err != nil {
		logger.Error("monitor setup failed", slog.Any("error", err))
		return exitConfig
	}

	if cfg.Suite.ScenariosFile != "" || cfg.Suite.ScenariosFolder != "" {
		primed := false
		watcher, err := loader.WatchScenarios(ctx, cfg, func(bundle config.ScenarioBundle) {
			// The first bundle matches what Load already returned.
			if !primed {
				primed = true
				return
			}
			list, err := scenarios.Suite(cfg.Suite, bundle.Scenarios, logger)
			if err != nil {
				logger.Error("reloaded scenarios rejected", slog.Any("error", err))
				return
			}
			mon.Update(monitor.Snapshot{Scenarios: list, Sources: bundle.Sources, Skipped: bundle.Skipped})
		}, func(err error) {
			logger.Error("scenario watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("scenario watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	srv, err := newHTTPServer(cfg.Monitor.Listen, logger, server.NewMonitorHandler(mon))
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		return exitConfig
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		if err := mon.Run(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("monitor stopped", slog.Any("error", err))
		}
	}()

	serveErr := srv.Run(ctx)
	cancel()
	<-monitorDone

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", serveErr))
		return exitFailures
	}
	logger.Info("monitor shutdown complete", slog.Int("runs", mon.Runs()))
	return exitOK
}

func buildReportStore(logger *slog.Logger, cfg config.StoreConfig) store.ReportStore {
	opts := store.Options{
		TTL:     time.Duration(cfg.TTLSeconds) * time.Second,
		History: cfg.History,
	}
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		logger.Info("using memory report store", slog.Duration("ttl", opts.TTL), slog.Int("history", opts.History))
		return store.NewMemory(opts)
	case "redis":
		redisStore, err := store.NewRedis(store.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: store.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		}, opts)
		if err != nil {
			logger.Error("redis report store initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory report store")
			return store.NewMemory(opts)
		}
		logger.Info("using redis report store", slog.String("address", cfg.Redis.Address))
		return redisStore
	default:
		logger.Warn("unsupported store backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return store.NewMemory(opts)
	}
}
