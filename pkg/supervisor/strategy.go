package supervisor

import (
	"context"

	"agentceli/warden/pkg/process"
)

// Strategy is one way of restarting the collector.
type Strategy interface {
	// Name labels logs and metrics.
	Name() string

	// Restart stops the collector and starts it again.
	Restart(ctx context.Context) error
}

// ControlStrategy restarts the collector through its own control command.
type ControlStrategy struct {
	Controller *process.Controller
}

// Name implements Strategy.
func (ControlStrategy) Name() string { return "control" }

// Restart runs "<control> stop" then "<control> start".
func (s ControlStrategy) Restart(ctx context.Context) error {
	if err := s.Controller.Control(ctx, process.ActionStop); err != nil {
		return err
	}
	return s.Controller.Control(ctx, process.ActionStart)
}

// DirectStrategy terminates the collector's processes and spawns the entry
// point itself.
type DirectStrategy struct {
	Controller *process.Controller
}

// Name implements Strategy.
func (DirectStrategy) Name() string { return "direct" }

// Restart terminates every collector process, killing survivors after the
// grace period, then spawns a new one and waits out its startup grace.
func (s DirectStrategy) Restart(ctx context.Context) error {
	if _, err := s.Controller.TerminateAll(ctx); err != nil {
		return err
	}
	_, err := s.Controller.Spawn(ctx)
	return err
}

// DefaultStrategies returns the control strategy followed by the direct one.
func DefaultStrategies(ctrl *process.Controller) []Strategy {
	return []Strategy{ControlStrategy{Controller: ctrl}, DirectStrategy{Controller: ctrl}}
}
