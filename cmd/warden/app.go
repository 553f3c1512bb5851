package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/limits"
	"agentceli/warden/pkg/limits/storage"
	"agentceli/warden/pkg/monitor"
	"agentceli/warden/pkg/process"
	"agentceli/warden/pkg/security/auth"
	"agentceli/warden/pkg/scheduler"
	"agentceli/warden/pkg/server"
	"agentceli/warden/pkg/supervisor"
	"agentceli/warden/pkg/telemetry/health"
	"agentceli/warden/pkg/telemetry/metrics"
	"agentceli/warden/pkg/telemetry/tracing"
	"agentceli/warden/pkg/watchdog"
)

// app holds every component of a running daemon.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics    *metrics.Collector
	tracer     *tracing.Tracer
	store      *alerts.Store
	kafka      *alerts.KafkaSink
	kafkaQueue *alerts.AsyncSink
	sink       alerts.Sink
	backend    storage.Backend

	governor   *limits.Governor
	scheduler  *scheduler.Scheduler
	monitor    *monitor.Monitor
	supervisor *supervisor.Supervisor
	watchdog   *watchdog.Watchdog
	watcher    *watchdog.FileWatcher
	health     *health.Checker
	server     *server.Server

	loops []*scheduler.Loop
}

// newApp builds the component graph. Nothing is started.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	a.tracer = tracer
	a.sink = a.newAlertSink()

	backend, err := newBackend(cfg.Governor.Storage)
	if err != nil {
		return nil, err
	}
	a.backend = backend

	govCfg, err := limits.NewConfig(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build governor config: %w", err)
	}
	a.governor = limits.NewGovernor(govCfg, limits.Options{
		Logger:  logger,
		Alerts:  a.sink,
		Metrics: a.metrics,
	})

	a.scheduler = scheduler.New(a.governor, backend, scheduler.Config{
		ResetSchedule:   cfg.Governor.ResetSchedule,
		PruneSchedule:   cfg.Governor.PruneSchedule,
		PersistSchedule: cfg.Governor.PersistSchedule,
		CleanupSchedule: cfg.Governor.Storage.CleanupSchedule,
		RetentionDays:   cfg.Governor.Storage.RetentionDays,
	}, logger, a.metrics)

	if config.IsEnabled(cfg.Monitor.Enabled, config.DefaultMonitorEnabled) {
		a.monitor = monitor.New(a.governor, monitor.NewConfig(cfg), a.sink, logger)
		a.addLoop("monitor", cfg.Monitor.Interval, cfg.Monitor.ErrorBackoff, a.monitor.CheckAndAlert)
	}

	registry := process.NewSystemRegistry(process.CmdlineMatcher{
		Require: cfg.Supervisor.Process.Require,
		Exclude: cfg.Supervisor.Process.Exclude,
	})
	controller := process.NewController(registry, process.NewControllerConfig(cfg.Supervisor), logger)

	// The watchdog is built first so the supervisor can honor its halt.
	if config.IsEnabled(cfg.Watchdog.Enabled, config.DefaultWatchdogEnabled) {
		a.watchdog = watchdog.New(watchdog.NewConfig(cfg), controller, watchdog.Options{
			Logger:   logger,
			Alerts:   a.sink,
			Metrics:  a.metrics,
			Governor: a.governor,
		})
		a.addLoop("watchdog", cfg.Watchdog.Interval, cfg.Watchdog.ErrorBackoff, a.watchdog.Check)

		if config.IsEnabled(cfg.Watchdog.Watch, config.DefaultWatchdogWatch) {
			a.watcher, err = watchdog.NewFileWatcher(a.watchdog.Datasets(), cfg.Watchdog.Debounce, logger)
			if err != nil {
				logger.Warn("dataset file watching disabled", "error", err)
			}
		}
	}

	if config.IsEnabled(cfg.Supervisor.Enabled, config.DefaultSupervisorEnabled) {
		opts := supervisor.Options{
			Logger:  logger,
			Alerts:  a.sink,
			Metrics: a.metrics,
		}
		if a.watchdog != nil {
			opts.Halt = a.watchdog
		}
		a.supervisor = supervisor.New(supervisor.NewConfig(cfg.Supervisor), registry, supervisor.DefaultStrategies(controller), opts)
		a.addLoop("supervisor", cfg.Supervisor.Interval, cfg.Supervisor.ErrorBackoff, a.supervisor.Cycle)
	}

	a.health = health.New(0, a.metrics)
	a.registerReadiness()

	a.server = server.NewServer(&cfg.Server, a.serverDeps(), logger)
	return a, nil
}

// newAlertSink fans alerts out to the JSON store, the alert counter and,
// when enabled, Kafka.
func (a *app) newAlertSink() alerts.Sink {
	a.store = alerts.NewStore(a.cfg.Alerts.Path, a.cfg.Alerts.MaxAlerts, a.logger)

	sinks := []alerts.Sink{
		a.store,
		alerts.SinkFunc(func(_ context.Context, alert alerts.Alert) error {
			a.metrics.RecordAlert(string(alert.Type), string(alert.Severity))
			return nil
		}),
	}
	if k := a.cfg.Alerts.Kafka; k.Enabled {
		a.kafka = alerts.NewKafkaSink(k.Brokers, k.Topic, k.WriteTimeout)
		// Kafka writes can take the full write timeout; governor callers
		// must not wait on them.
		a.kafkaQueue = alerts.NewAsyncSink(a.kafka, alerts.DefaultQueueSize, a.logger)
		sinks = append(sinks, a.kafkaQueue)
	}
	return alerts.NewFanout(a.logger, sinks...)
}

func newBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryBackend(), nil
	case "sqlite":
		backend, err := storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:      cfg.SQLitePath,
			BusyTimeout: cfg.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger storage: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

func (a *app) addLoop(name string, interval, backoff time.Duration, cycle scheduler.CycleFunc) {
	a.loops = append(a.loops, scheduler.NewLoop(scheduler.LoopConfig{
		Name:         name,
		Interval:     interval,
		ErrorBackoff: backoff,
		Logger:       a.logger,
		Metrics:      a.metrics,
		Tracer:       a.tracer,
	}, cycle))
}

func (a *app) loop(name string) *scheduler.Loop {
	for _, l := range a.loops {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

// registerReadiness makes /ready fail while housekeeping is not running or
// the collector is halted after a shutdown.
func (a *app) registerReadiness() {
	a.health.RegisterCheck("scheduler", func(context.Context) error {
		if !a.scheduler.IsRunning() {
			return errors.New("scheduler is not running")
		}
		return nil
	})
	if a.watchdog != nil {
		a.health.RegisterCheck("collector", func(context.Context) error {
			if a.watchdog.Halted() {
				return errors.New("collector halted after dataset shortfall")
			}
			return nil
		})
	}
}

// serverDeps exposes only the components that exist; a nil pointer stored in
// an interface field would not read as absent.
func (a *app) serverDeps() server.Deps {
	deps := server.Deps{
		Governor:    a.governor,
		Alerts:      a.store,
		Health:      a.health,
		MetricsPath: a.cfg.Telemetry.Metrics.Path,
		Version:     versionInfo(),
		Tracer:      a.tracer,
		Auth:        auth.NewValidator(a.cfg.Server.Auth),
	}
	if config.IsEnabled(a.cfg.Telemetry.Metrics.Enabled, config.DefaultMetricsEnabled) {
		deps.Metrics = a.metrics
	}
	if a.monitor != nil {
		deps.Monitor = a.monitor
	}
	if a.supervisor != nil {
		deps.Supervisor = a.supervisor
	}
	if a.watchdog != nil {
		deps.Watchdog = a.watchdog
	}
	return deps
}

// Run restores the ledger, starts every loop and serves the control API until
// ctx is cancelled. The final ledger snapshot is saved on the way out.
func (a *app) Run(ctx context.Context) error {
	if err := a.scheduler.Restore(ctx); err != nil {
		a.logger.Error("ledger restore failed, starting fresh", "error", err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, l := range a.loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Run(loopCtx)
		}()
	}

	if a.watcher != nil {
		if check := a.loop("watchdog"); check != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := a.watcher.Watch(loopCtx, check.Trigger); err != nil {
					a.logger.Warn("dataset file watcher stopped", "error", err)
				}
			}()
		}
	}

	err := a.server.Start(ctx)

	cancel()
	wg.Wait()
	return err
}

// tracerFlushTimeout bounds the export of buffered spans on Close.
const tracerFlushTimeout = 5 * time.Second

// Close flushes spans and queued Kafka alerts and releases storage and the
// Kafka writer.
func (a *app) Close() error {
	var errs []error
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), tracerFlushTimeout)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
	}
	if a.kafkaQueue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Alerts.Kafka.WriteTimeout+time.Second)
		errs = append(errs, a.kafkaQueue.Close(ctx))
		cancel()
	}
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	return errors.Join(errs...)
}
