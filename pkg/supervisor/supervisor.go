package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/process"
	"agentceli/warden/pkg/telemetry/health"
	"agentceli/warden/pkg/telemetry/logging"
	"agentceli/warden/pkg/telemetry/metrics"
)

// State is the supervisor's view of the collector.
type State string

const (
	StateHealthy  State = "RUNNING_HEALTHY"
	StateDegraded State = "RUNNING_DEGRADED"
	StateStopped  State = "STOPPED"
)

// states lists every State, for the state gauge.
var states = []string{string(StateHealthy), string(StateDegraded), string(StateStopped)}

// ErrRestartFailed is returned when every restart strategy failed.
var ErrRestartFailed = errors.New("all restart strategies failed")

// Halter reports whether the collector has been deliberately halted and must
// not be restarted. The dataset watchdog implements it.
type Halter interface {
	Halted() bool
}

// Config holds the supervisor's health check settings.
type Config struct {
	// MaxDataAge bounds the artifact and endpoint freshness.
	MaxDataAge time.Duration

	// ArtifactPath is the collector's primary output file.
	ArtifactPath string

	// TimestampField is the gjson path of the embedded timestamp.
	TimestampField string

	// HealthURL is the collector's HTTP endpoint.
	HealthURL string

	// ProbeTimeout bounds each check.
	ProbeTimeout time.Duration
}

// NewConfig extracts the supervisor settings from the application config.
func NewConfig(s config.SupervisorConfig) Config {
	return Config{
		MaxDataAge:     s.MaxDataAge,
		ArtifactPath:   s.ArtifactPath,
		TimestampField: s.TimestampField,
		HealthURL:      s.HealthURL,
		ProbeTimeout:   s.ProbeTimeout,
	}
}

// Options carries the supervisor's collaborators. Every field is optional.
type Options struct {
	Logger  *slog.Logger
	Alerts  alerts.Sink
	Metrics *metrics.Collector

	// HTTPClient probes the endpoint. Defaults to a client with ProbeTimeout.
	HTTPClient *http.Client

	// Halt blocks restarts while it reports true.
	Halt Halter

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Status is a snapshot of the supervisor.
type Status struct {
	State          State                         `json:"state"`
	RestartCount   int                           `json:"restart_count"`
	LastCheck      *time.Time                    `json:"last_check,omitempty"`
	LastRestart    *time.Time                    `json:"last_restart,omitempty"`
	LastRestartErr string                        `json:"last_restart_error,omitempty"`
	Checks         map[string]health.CheckResult `json:"checks,omitempty"`
}

// Supervisor checks the collector's health and restarts it when unhealthy.
type Supervisor struct {
	checker    *health.Checker
	strategies []Strategy
	halt       Halter
	sink       alerts.Sink
	metrics    *metrics.Collector
	logger     *slog.Logger
	now        func() time.Time

	// restartMu serializes restarts.
	restartMu sync.Mutex

	mu             sync.Mutex
	state          State
	restartCount   int
	lastReport     health.Report
	lastCheck      time.Time
	lastRestart    time.Time
	lastRestartErr error
}

// New creates a supervisor. Strategies are tried in order on Restart.
func New(cfg Config, registry process.Registry, strategies []Strategy, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Alerts == nil {
		opts.Alerts = alerts.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.MaxDataAge <= 0 {
		cfg.MaxDataAge = 5 * time.Minute
	}
	if cfg.TimestampField == "" {
		cfg.TimestampField = "timestamp"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: cfg.ProbeTimeout}
	}

	checker := health.New(cfg.ProbeTimeout, opts.Metrics)
	if cfg.ArtifactPath != "" {
		checker.RegisterCheck(CheckArtifact, artifactCheck(cfg.ArtifactPath, cfg.TimestampField, cfg.MaxDataAge, opts.Now))
	}
	if cfg.HealthURL != "" {
		checker.RegisterCheck(CheckEndpoint, endpointCheck(opts.HTTPClient, cfg.HealthURL, cfg.TimestampField, cfg.MaxDataAge, opts.Now))
	}
	checker.RegisterCheck(CheckProcess, processCheck(registry))

	return &Supervisor{
		checker:    checker,
		strategies: strategies,
		halt:       opts.Halt,
		sink:       opts.Alerts,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With("component", "supervisor"),
		now:        opts.Now,
	}
}

// HealthCheck runs the artifact, endpoint and process checks concurrently.
// All passing is RUNNING_HEALTHY; no collector process is STOPPED; anything
// else is RUNNING_DEGRADED.
func (s *Supervisor) HealthCheck(ctx context.Context) (State, health.Report) {
	s.logger.Info("performing health check")
	report := s.checker.Run(ctx)

	state := StateDegraded
	switch {
	case report.Healthy():
		state = StateHealthy
	case errors.Is(report.Checks[CheckProcess].Err(), ErrNoProcess):
		state = StateStopped
	}

	s.mu.Lock()
	previous := s.state
	s.state = state
	s.lastReport = report
	s.lastCheck = s.now()
	s.mu.Unlock()

	s.metrics.SetState("supervisor", string(state), states)

	args := []any{"state", state}
	for _, name := range s.checker.ListChecks() {
		args = append(args, name, report.Checks[name].Healthy())
	}
	if state == StateHealthy {
		s.logger.Info("health status", args...)
	} else {
		s.logger.Warn("health status", append(args, "error", report.Err())...)
	}
	if previous != state {
		s.logger.Info("collector state changed", "from", previous, "to", state)
	}

	return state, report
}

// Cycle is one supervisor iteration: check health and restart the collector
// when it is not healthy, unless it has been halted.
//
// The restart runs on a context that ignores ctx's cancellation, so a shutdown
// signal does not interrupt a restart in flight. Each strategy is bounded by
// its own timeouts.
func (s *Supervisor) Cycle(ctx context.Context) error {
	state, _ := s.HealthCheck(ctx)
	if state == StateHealthy {
		s.logger.Info("system healthy")
		return nil
	}

	if s.halt != nil && s.halt.Halted() {
		s.logger.Warn("collector halted by dataset watchdog, restart skipped", "state", state)
		return nil
	}

	s.logger.Warn("health check failed, restarting collector", "state", state)

	// a failed restart is already logged and alerted; the next regular
	// cycle retries it
	_ = s.Restart(context.WithoutCancel(ctx))
	return nil
}

// Restart increments the restart counter and tries each strategy in order
// until one succeeds. When every strategy fails it returns ErrRestartFailed
// joined with each strategy's error.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	s.mu.Lock()
	s.restartCount++
	n := s.restartCount
	s.mu.Unlock()

	s.logger.Warn("restarting collector", "restart", n)

	errs := []error{ErrRestartFailed}
	var used string
	for _, strategy := range s.strategies {
		start := time.Now()
		err := strategy.Restart(ctx)
		s.metrics.RecordRestart(strategy.Name(), err == nil)
		if err != nil {
			s.logger.Warn("restart strategy failed", "strategy", strategy.Name(), "error", err, "duration", time.Since(start))
			errs = append(errs, fmt.Errorf("%s: %w", strategy.Name(), err))
			continue
		}
		s.logger.Info("restart strategy succeeded", "strategy", strategy.Name(), "duration", time.Since(start))
		used = strategy.Name()
		break
	}

	var err error
	if used == "" {
		err = errors.Join(errs...)
	}

	s.mu.Lock()
	s.lastRestart = s.now()
	s.lastRestartErr = err
	s.mu.Unlock()

	if err != nil {
		logging.Critical(s.logger, "failed to restart collector", "restart", n, "error", err)
		s.send(alerts.New(alerts.TypeRestartFailed, alerts.SeverityCritical, "",
			fmt.Sprintf("Collector restart #%d failed: %v", n, err)).At(s.now()))
		return err
	}

	s.logger.Info("collector restarted", "restart", n, "strategy", used)
	s.send(alerts.New(alerts.TypeRestart, alerts.SeverityMedium, "",
		fmt.Sprintf("Collector restarted via %s strategy (restart #%d)", used, n)).At(s.now()))
	return nil
}

func (s *Supervisor) send(a alerts.Alert) {
	if err := s.sink.Send(context.Background(), a); err != nil {
		s.logger.Error("failed to send alert", "type", a.Type, "error", err)
	}
}

// RestartCount returns how many restarts have been attempted.
func (s *Supervisor) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCount
}

// State returns the state from the last health check.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:        s.state,
		RestartCount: s.restartCount,
		Checks:       s.lastReport.Checks,
	}
	if !s.lastCheck.IsZero() {
		t := s.lastCheck
		st.LastCheck = &t
	}
	if !s.lastRestart.IsZero() {
		t := s.lastRestart
		st.LastRestart = &t
	}
	if s.lastRestartErr != nil {
		st.LastRestartErr = s.lastRestartErr.Error()
	}
	return st
}
