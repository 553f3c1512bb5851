package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"agentceli/warden/pkg/limits/storage"
	"agentceli/warden/pkg/telemetry/metrics"
)

// Governor is the part of limits.Governor the scheduler drives.
type Governor interface {
	ResetDaily()
	PruneOld() int
	Day() string
	Snapshot() *storage.LedgerState
	Restore(state *storage.LedgerState) bool
}

// Config holds the cron expressions for the governor's housekeeping jobs.
// An empty expression disables that job.
type Config struct {
	// ResetSchedule runs the daily ledger reset ("0 0 * * *").
	ResetSchedule string

	// PruneSchedule drops old window data and expired reservations ("@every 1m").
	PruneSchedule string

	// PersistSchedule saves a ledger snapshot ("@every 30s").
	PersistSchedule string

	// CleanupSchedule deletes old snapshots ("0 4 * * *").
	CleanupSchedule string

	// RetentionDays is how many days of snapshots Cleanup keeps.
	RetentionDays int
}

// Job names, used in logs, metrics and NextRuns.
const (
	JobReset   = "reset"
	JobPrune   = "prune"
	JobPersist = "persist"
	JobCleanup = "cleanup"
)

// Scheduler runs the governor's housekeeping on cron schedules: the daily
// reset, pruning, snapshot persistence and snapshot cleanup.
type Scheduler struct {
	gov     Governor
	backend storage.Backend
	cfg     Config
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	running bool
}

// New creates a scheduler. backend may be nil, which disables persistence
// and cleanup.
func New(gov Governor, backend storage.Backend, cfg Config, logger *slog.Logger, m *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		gov:     gov,
		backend: backend,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "scheduler"),
		now:     time.Now,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Restore reloads the most recent snapshot into the governor. A snapshot from
// an earlier day only carries the kill switch forward; its spend is dropped,
// which is the reset a daemon that was down at midnight missed.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	state, err := s.backend.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	if state == nil {
		s.logger.Info("no ledger snapshot found, starting fresh", "day", s.gov.Day())
		return nil
	}

	if !s.gov.Restore(state) {
		s.logger.Info("ledger snapshot is from an earlier day, spend reset",
			"snapshot_day", state.Day,
			"day", s.gov.Day(),
			"dropped_spend", state.Total().StringFixed(4),
		)
	}
	return s.Persist(ctx)
}

// Start validates and schedules every configured job. It returns an error
// for an invalid cron expression without scheduling anything.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{JobReset, s.cfg.ResetSchedule, s.reset},
		{JobPrune, s.cfg.PruneSchedule, s.prune},
		{JobPersist, s.cfg.PersistSchedule, s.Persist},
		{JobCleanup, s.cfg.CleanupSchedule, s.Cleanup},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(job.schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q for %s: %w", job.schedule, job.name, err)
		}
	}

	for _, job := range jobs {
		if job.schedule == "" {
			s.logger.Debug("job not scheduled", "job", job.name)
			continue
		}
		if s.backend == nil && (job.name == JobPersist || job.name == JobCleanup) {
			continue
		}
		job := job
		id, err := s.cron.AddFunc(job.schedule, func() {
			s.runJob(ctx, job.name, job.run)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		s.entries[job.name] = id
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started",
		"reset", s.cfg.ResetSchedule,
		"prune", s.cfg.PruneSchedule,
		"persist", s.cfg.PersistSchedule,
		"cleanup", s.cfg.CleanupSchedule,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runJob executes one job and records the result.
func (s *Scheduler) runJob(ctx context.Context, name string, run func(context.Context) error) {
	start := time.Now()
	err := run(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		s.logger.Error("scheduled job failed", "job", name, "error", err)
	}
	s.metrics.RecordCycle("scheduler_"+name, result, time.Since(start))
}

func (s *Scheduler) reset(ctx context.Context) error {
	s.gov.ResetDaily()
	if s.backend == nil {
		return nil
	}
	return s.Persist(ctx)
}

func (s *Scheduler) prune(context.Context) error {
	if n := s.gov.PruneOld(); n > 0 {
		s.logger.Debug("pruned governor history", "dropped", n)
	}
	return nil
}

// Persist saves the governor's current snapshot.
func (s *Scheduler) Persist(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	if err := s.backend.Save(ctx, s.gov.Snapshot()); err != nil {
		return fmt.Errorf("failed to save ledger snapshot: %w", err)
	}
	return nil
}

// Cleanup deletes snapshots older than RetentionDays.
func (s *Scheduler) Cleanup(ctx context.Context) error {
	if s.backend == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}
	cutoff := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	deleted, err := s.backend.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up ledger snapshots: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("old ledger snapshots deleted", "deleted_count", deleted, "cutoff", cutoff)
	}
	return nil
}

// Stop stops the scheduler, waits for running jobs and saves a final snapshot.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false

	if err := s.Persist(context.Background()); err != nil {
		s.logger.Error("final snapshot failed", "error", err)
	}
	s.logger.Info("scheduler stopped")
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun is the next execution time of one scheduled job.
type NextRun struct {
	Job  string    `json:"job"`
	Next time.Time `json:"next"`
}

// NextRuns returns the next execution time of every scheduled job, soonest first.
func (s *Scheduler) NextRuns() []NextRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]NextRun, 0, len(s.entries))
	for name, id := range s.entries {
		runs = append(runs, NextRun{Job: name, Next: s.cron.Entry(id).Next})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Next.Before(runs[j].Next) })
	return runs
}
