package alerts

import (
	"context"
	"errors"
	"log/slog"

	"agentceli/warden/pkg/telemetry/logging"
)

// Fanout delivers every alert to each of its sinks. A failing sink does not
// prevent delivery to the others; all errors are joined.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewFanout creates a fan-out over sinks. Nil sinks are skipped.
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Fanout{logger: logger.With("component", "alerts")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Send logs alert and delivers it to every sink.
func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	f.logger.Log(ctx, levelFor(alert.Severity), alert.Message,
		"alert_id", alert.ID,
		"type", alert.Type,
		"severity", alert.Severity,
		"source", alert.Source,
	)

	var errs []error
	for _, s := range f.sinks {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func levelFor(s Severity) slog.Level {
	switch s {
	case SeverityCritical:
		return logging.LevelCritical
	case SeverityHigh:
		return slog.LevelError
	case SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
