// Package main is the entry point for the edgegate caching gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/gateway"
	"github.com/edgegate/edgegate/internal/lifecycle"
	"github.com/edgegate/edgegate/internal/observability"
	"github.com/edgegate/edgegate/internal/pending"
	"github.com/edgegate/edgegate/internal/strategy"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("EDGEGATE_CONFIG_PATH", "configs/edgegate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("EDGEGATE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("EDGEGATE_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("edgegate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting edgegate",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("origin", cfg.Origin.URL),
		observability.String("backend", cfg.Cache.Backend),
		observability.String("cacheVersion", cfg.Cache.Version),
		observability.Int("manifestAssets", len(cfg.Assets.Manifest)),
		observability.Bool("pendingEnabled", cfg.Pending.Enabled),
	)

	return cfg
}

// application holds all application components.
type application struct {
	server   *gateway.Server
	registry cache.Registry
	manager  *lifecycle.Manager
	replayer *pending.Replayer
	pending  *pending.Store
	metrics  *observability.MetricsServer
	tracer   *observability.Tracer
	config   *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	tracer := initTracer(cfg, logger)

	registry, err := cache.NewRegistry(&cfg.Cache, logger)
	if err != nil {
		logger.Fatal("failed to create store registry", observability.Error(err))
	}

	fetcher := fetch.New(&cfg.Retry, fetch.WithLogger(logger))
	manager := lifecycle.NewManager(cfg, registry, fetcher, logger)

	ctx := context.Background()

	selector, err := strategy.NewSelector(ctx, cfg, registry, fetcher, logger)
	if err != nil {
		logger.Fatal("failed to create strategy selector", observability.Error(err))
	}

	var opts []gateway.Option
	var pendingStore *pending.Store
	var replayer *pending.Replayer
	if cfg.Pending.Enabled {
		pendingStore, err = pending.OpenStore(cfg.Pending.Path, logger)
		if err != nil {
			logger.Fatal("failed to open pending store", observability.Error(err))
		}
		replayer, err = pending.NewReplayer(pendingStore, fetcher, cfg.Pending.ReplaySchedule, logger)
		if err != nil {
			logger.Fatal("failed to create replayer", observability.Error(err))
		}
		opts = append(opts, gateway.WithPending(pendingStore, replayer))
	}

	var metricsServer *observability.MetricsServer
	if mc := cfg.Observability.Metrics; mc != nil && mc.Enabled {
		msCfg := observability.DefaultMetricsServerConfig()
		if mc.Port != 0 {
			msCfg.Port = mc.Port
		}
		if mc.Path != "" {
			msCfg.Path = mc.Path
		}
		metricsServer = observability.NewMetricsServer(msCfg, logger)
	}

	server := gateway.New(cfg, selector, fetcher, registry, manager, logger, opts...)

	return &application{
		server:   server,
		registry: registry,
		manager:  manager,
		replayer: replayer,
		pending:  pendingStore,
		metrics:  metricsServer,
		tracer:   tracer,
		config:   cfg,
	}
}

// initTracer initializes the tracer if tracing is enabled.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tc := cfg.Observability.Tracing
	if tc == nil || !tc.Enabled {
		return nil
	}

	serviceName := tc.ServiceName
	if serviceName == "" {
		serviceName = "edgegate"
	}

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: tc.OTLPEndpoint,
		SamplingRate: tc.SamplingRate,
		Enabled:      true,
	})
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing",
			observability.Error(err))
		return nil
	}
	return tracer
}

// run installs the configured version, activates it, and serves until a
// shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	installCtx, installCancel := context.WithTimeout(ctx, 5*time.Minute)
	if err := app.manager.Install(installCtx); err != nil {
		installCancel()
		logger.Fatal("install failed", observability.Error(err))
	}
	installCancel()

	if err := app.manager.Activate(ctx); err != nil {
		logger.Fatal("activation failed", observability.Error(err))
	}

	if app.replayer != nil {
		app.replayer.Start()
	}

	if app.metrics != nil {
		go func() {
			if err := app.metrics.Start(ctx); err != nil {
				logger.Error("metrics server failed", observability.Error(err))
			}
		}()
	}

	watcher := startConfigWatcher(ctx, configPath, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, watcher, logger)
}

// startConfigWatcher starts watching the configuration file for changes.
// Reload is advisory: a changed cache version requires a restart to take
// effect, which the watcher logs.
func startConfigWatcher(ctx context.Context, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath,
		func(cfg *config.Config) {
			logger.Info("configuration file changed; restart to apply",
				observability.String("cacheVersion", cfg.Cache.Version),
			)
		},
		config.WithLogger(logger),
	)
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}

// shutdown stops all components gracefully.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Error("failed to stop config watcher", observability.Error(err))
		}
	}

	if err := app.server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop server", observability.Error(err))
	}

	if app.replayer != nil {
		app.replayer.Stop()
	}
	if app.pending != nil {
		if err := app.pending.Close(); err != nil {
			logger.Error("failed to close pending store", observability.Error(err))
		}
	}

	if app.metrics != nil {
		if err := app.metrics.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", observability.Error(err))
		}
	}

	if app.tracer != nil {
		if err := app.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}

	if err := app.registry.Close(); err != nil {
		logger.Error("failed to close store registry", observability.Error(err))
	}

	logger.Info("edgegate stopped")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
