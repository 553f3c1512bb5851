package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"agentceli/warden/pkg/telemetry/metrics"
	"agentceli/warden/pkg/telemetry/tracing"
)

// CycleFunc is one iteration of a periodic loop.
type CycleFunc func(ctx context.Context) error

// Loop runs a CycleFunc every Interval until its context is cancelled.
// A failed or panicking cycle is logged and the loop waits ErrorBackoff
// (capped at Interval) before trying again. A loop never exits on its own.
type Loop struct {
	name         string
	interval     time.Duration
	errorBackoff time.Duration
	cycle        CycleFunc
	logger       *slog.Logger
	metrics      *metrics.Collector
	tracer       *tracing.Tracer
	trigger      chan struct{}
}

// LoopConfig configures a Loop.
type LoopConfig struct {
	// Name labels logs and metrics ("monitor", "supervisor", "watchdog").
	Name string

	// Interval is the pause between successful cycles.
	Interval time.Duration

	// ErrorBackoff is the pause after a failed cycle.
	ErrorBackoff time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector

	// Tracer opens one span per cycle. Nil disables cycle spans.
	Tracer *tracing.Tracer
}

// NewLoop creates a loop that calls cycle.
func NewLoop(cfg LoopConfig, cycle CycleFunc) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ErrorBackoff <= 0 || cfg.ErrorBackoff > cfg.Interval {
		cfg.ErrorBackoff = cfg.Interval
	}
	return &Loop{
		name:         cfg.Name,
		interval:     cfg.Interval,
		errorBackoff: cfg.ErrorBackoff,
		cycle:        cycle,
		logger:       cfg.Logger.With("component", cfg.Name),
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		trigger:      make(chan struct{}, 1),
	}
}

// Name returns the loop's name.
func (l *Loop) Name() string {
	return l.name
}

// Trigger requests an extra cycle as soon as the current wait ends. Calls
// made while one is already pending are coalesced.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Run executes the first cycle immediately and then one cycle per interval.
// It blocks until ctx is cancelled and always returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop started", "interval", l.interval, "error_backoff", l.errorBackoff)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("loop stopped")
			return ctx.Err()
		case <-timer.C:
		case <-l.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		wait := l.interval
		if err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("loop stopped")
				return ctx.Err()
			}
			l.logger.Error("cycle failed", "error", err, "retry_in", l.errorBackoff)
			wait = l.errorBackoff
		}
		timer.Reset(wait)
	}
}

// RunOnce executes a single cycle, converting a panic into an error.
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, l.name+".cycle")
	span.SetAttributes(attribute.String(tracing.AttrLoop, l.name))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("cycle panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s cycle panicked: %v", l.name, r)
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		l.metrics.RecordCycle(l.name, result, time.Since(start))
		tracing.SetStatus(span, err)
	}()

	return l.cycle(ctx)
}
