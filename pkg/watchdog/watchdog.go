package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/telemetry/logging"
	"agentceli/warden/pkg/telemetry/metrics"
)

// State is the watchdog's view of the collector's output.
type State string

const (
	StateHealthy  State = "HEALTHY"
	StateDegraded State = "DEGRADED"
	StateShutdown State = "SHUTDOWN"
)

var states = []string{string(StateHealthy), string(StateDegraded), string(StateShutdown)}

// EmergencyReason is recorded on the governor when a shutdown engages the kill switch.
const EmergencyReason = "dataset watchdog shut the collector down"

// Collector counts and stops the collector's processes.
// *process.Controller implements it.
type Collector interface {
	Count(ctx context.Context) (int, error)
	Stop(ctx context.Context) error
}

// Governor is the kill switch engaged after a shutdown.
type Governor interface {
	EmergencyStopAll(reason string)
}

// Config holds the watchdog's thresholds.
type Config struct {
	Datasets          []Descriptor
	MinDatasets       int
	ShutdownThreshold time.Duration

	// StopTimeout bounds the shutdown of the collector.
	StopTimeout time.Duration

	// EmergencyStop engages the governor kill switch after a shutdown.
	EmergencyStop bool
}

// NewConfig extracts the watchdog settings from the application config.
func NewConfig(cfg *config.Config) Config {
	w := cfg.Watchdog
	return Config{
		Datasets:          NewDescriptors(w.Datasets),
		MinDatasets:       w.MinDatasets,
		ShutdownThreshold: w.ShutdownThreshold,
		StopTimeout:       cfg.Supervisor.Control.StopTimeout + cfg.Supervisor.Control.Settle + 2*cfg.Supervisor.TermGrace,
		EmergencyStop:     config.IsEnabled(w.EmergencyStopOnShutdown, true),
	}
}

// Options carries the watchdog's collaborators. Every field is optional.
type Options struct {
	Logger   *slog.Logger
	Alerts   alerts.Sink
	Metrics  *metrics.Collector
	Governor Governor

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Status is a snapshot of the watchdog.
type Status struct {
	State         State      `json:"state"`
	ValidDatasets int        `json:"valid_datasets"`
	MinDatasets   int        `json:"min_datasets"`
	Halted        bool       `json:"halted"`
	Shutdowns     int        `json:"shutdowns"`
	LowDataSince  *time.Time `json:"low_data_since,omitempty"`
	LastCheck     *time.Time `json:"last_check,omitempty"`
	Datasets      []Result   `json:"datasets,omitempty"`
}

// Watchdog shuts the collector down when it has produced too few valid
// datasets for longer than the shutdown threshold.
type Watchdog struct {
	cfg       Config
	collector Collector
	governor  Governor
	sink      alerts.Sink
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time

	// checkMu serializes Check; the file watcher and the loop both call it.
	checkMu sync.Mutex

	mu           sync.Mutex
	state        State
	lowDataSince time.Time
	halted       bool
	shutdowns    int
	lastCheck    time.Time
	lastResults  []Result
}

// New creates a watchdog.
func New(cfg Config, collector Collector, opts Options) *Watchdog {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Alerts == nil {
		opts.Alerts = alerts.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.MinDatasets <= 0 {
		cfg.MinDatasets = config.DefaultMinDatasets
	}
	if cfg.ShutdownThreshold <= 0 {
		cfg.ShutdownThreshold = config.DefaultShutdownThreshold
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 45 * time.Second
	}

	return &Watchdog{
		cfg:       cfg,
		collector: collector,
		governor:  opts.Governor,
		sink:      opts.Alerts,
		metrics:   opts.Metrics,
		logger:    opts.Logger.With("component", "watchdog"),
		now:       opts.Now,
		state:     StateHealthy,
	}
}

// CountValid checks every dataset and returns the number that are valid.
func (w *Watchdog) CountValid() (int, []Result) {
	now := w.now()
	results := make([]Result, 0, len(w.cfg.Datasets))
	valid := 0
	for _, d := range w.cfg.Datasets {
		r := CheckDataset(d, now)
		if r.Valid {
			valid++
			w.logger.Debug("dataset valid", "dataset", d.Name, "age", r.Age.Round(time.Second))
		} else {
			w.logger.Warn("dataset invalid", "dataset", d.Name, "reason", r.Reason, "detail", r.Detail)
		}
		w.metrics.SetDatasetAge(d.Name, r.Age)
		results = append(results, r)
	}
	w.metrics.SetValidDatasets(valid)

	w.mu.Lock()
	w.lastResults = results
	w.lastCheck = now
	w.mu.Unlock()

	return valid, results
}

// Check is one watchdog iteration.
//
// With no collector running the watchdog only observes and forgets any
// low-data period. Otherwise a valid count below MinDatasets starts the
// low-data timer, and once the timer reaches ShutdownThreshold the collector
// is stopped. A successful shutdown clears the timer and latches the halt
// that blocks supervisor restarts. A failed shutdown keeps the timer, so the
// next Check tries again.
func (w *Watchdog) Check(ctx context.Context) error {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	running, err := w.collector.Count(ctx)
	if err != nil {
		return fmt.Errorf("count collector processes: %w", err)
	}

	valid, _ := w.CountValid()
	now := w.now()

	if running == 0 {
		w.logger.Info("collector not running, monitoring only", "valid_datasets", valid)
		w.mu.Lock()
		w.lowDataSince = time.Time{}
		w.mu.Unlock()
		return nil
	}

	if valid >= w.cfg.MinDatasets {
		w.mu.Lock()
		since := w.lowDataSince
		w.lowDataSince = time.Time{}
		w.mu.Unlock()

		if !since.IsZero() {
			w.logger.Info("dataset output recovered", "valid_datasets", valid, "degraded_for", now.Sub(since).Round(time.Second))
		} else {
			w.logger.Info("dataset output healthy", "valid_datasets", valid, "min_datasets", w.cfg.MinDatasets)
		}
		w.setState(StateHealthy)
		return nil
	}

	w.mu.Lock()
	since := w.lowDataSince
	if since.IsZero() {
		w.lowDataSince = now
	}
	w.mu.Unlock()

	if since.IsZero() {
		w.logger.Warn("dataset output below minimum", "valid_datasets", valid, "min_datasets", w.cfg.MinDatasets)
		w.setState(StateDegraded)
		w.send(ctx, alerts.New(alerts.TypeDegraded, alerts.SeverityHigh, "",
			fmt.Sprintf("Only %d/%d datasets valid; collector will be shut down in %s unless output recovers",
				valid, w.cfg.MinDatasets, w.cfg.ShutdownThreshold)).At(now))
		return nil
	}

	degraded := now.Sub(since)
	if remaining := w.cfg.ShutdownThreshold - degraded; remaining > 0 {
		w.logger.Warn("dataset output still below minimum",
			"valid_datasets", valid,
			"degraded_for", degraded.Round(time.Second),
			"shutdown_in", remaining.Round(time.Second),
		)
		w.setState(StateDegraded)
		return nil
	}

	return w.shutdown(ctx, valid, degraded)
}

func (w *Watchdog) shutdown(ctx context.Context, valid int, degraded time.Duration) error {
	logging.Critical(w.logger, "shutting collector down after sustained low dataset output",
		"valid_datasets", valid, "degraded_for", degraded.Round(time.Second))

	// latch first so the supervisor does not race the shutdown with a restart
	w.mu.Lock()
	w.halted = true
	w.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StopTimeout)
	defer cancel()
	if err := w.collector.Stop(stopCtx); err != nil {
		w.logger.Error("collector shutdown failed, retrying next check", "error", err)
		return fmt.Errorf("shutdown collector: %w", err)
	}

	now := w.now()
	w.mu.Lock()
	w.lowDataSince = time.Time{}
	w.shutdowns++
	w.mu.Unlock()
	w.setState(StateShutdown)
	w.metrics.RecordShutdown()

	if w.cfg.EmergencyStop && w.governor != nil {
		w.governor.EmergencyStopAll(EmergencyReason)
	}

	w.send(ctx, alerts.New(alerts.TypeShutdown, alerts.SeverityCritical, "",
		fmt.Sprintf("Collector shut down: only %d/%d datasets valid for %s",
			valid, w.cfg.MinDatasets, degraded.Round(time.Second))).At(now))
	return nil
}

func (w *Watchdog) setState(s State) {
	w.mu.Lock()
	previous := w.state
	w.state = s
	w.mu.Unlock()

	w.metrics.SetState("watchdog", string(s), states)
	if previous != s {
		w.logger.Info("watchdog state changed", "from", previous, "to", s)
	}
}

func (w *Watchdog) send(ctx context.Context, a alerts.Alert) {
	if err := w.sink.Send(context.WithoutCancel(ctx), a); err != nil {
		w.logger.Error("failed to send alert", "type", a.Type, "error", err)
	}
}

// Halted reports whether the watchdog has shut the collector down and not yet
// been released. The supervisor does not restart a halted collector.
func (w *Watchdog) Halted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.halted
}

// Release clears the halt so the supervisor may restart the collector again.
// It reports whether a halt was active.
func (w *Watchdog) Release() bool {
	w.mu.Lock()
	was := w.halted
	w.halted = false
	if w.state == StateShutdown {
		w.state = StateHealthy
	}
	w.mu.Unlock()

	if was {
		w.logger.Info("collector halt released")
	}
	return was
}

// State returns the current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a snapshot of the watchdog.
func (w *Watchdog) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := Status{
		State:       w.state,
		MinDatasets: w.cfg.MinDatasets,
		Halted:      w.halted,
		Shutdowns:   w.shutdowns,
		Datasets:    append([]Result(nil), w.lastResults...),
	}
	for _, r := range w.lastResults {
		if r.Valid {
			st.ValidDatasets++
		}
	}
	if !w.lowDataSince.IsZero() {
		t := w.lowDataSince
		st.LowDataSince = &t
	}
	if !w.lastCheck.IsZero() {
		t := w.lastCheck
		st.LastCheck = &t
	}
	return st
}

// Datasets returns the configured dataset descriptors.
func (w *Watchdog) Datasets() []Descriptor {
	return append([]Descriptor(nil), w.cfg.Datasets...)
}
