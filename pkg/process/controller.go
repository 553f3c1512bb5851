package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"agentceli/warden/pkg/config"
)

// Control actions understood by the collector's control command.
const (
	ActionStop    = "stop"
	ActionStart   = "start"
	ActionRestart = "restart"
)

// ErrNoControlCommand is returned when no control command is configured.
var ErrNoControlCommand = errors.New("no control command configured")

// ErrNoSpawnCommand is returned when no spawn command is configured.
var ErrNoSpawnCommand = errors.New("no spawn command configured")

// ErrExitedEarly is returned when a spawned process dies within the startup grace.
var ErrExitedEarly = errors.New("process exited during startup grace")

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// ControlCommand is the argv prefix of the control command.
	ControlCommand []string

	// ControlDir is the control command's working directory.
	ControlDir string

	StopTimeout  time.Duration
	StartTimeout time.Duration

	// Settle is the pause after each control action.
	Settle time.Duration

	// SpawnCommand is the argv of the collector entry point.
	SpawnCommand []string

	// SpawnDir is the spawned process's working directory.
	SpawnDir string

	// SpawnLog receives the spawned process's output. Empty discards it.
	SpawnLog string

	// TermGrace is how long terminated processes get before SIGKILL.
	TermGrace time.Duration

	// StartupGrace is how long a spawned process must survive.
	StartupGrace time.Duration
}

// NewControllerConfig extracts the controller settings from the supervisor config.
func NewControllerConfig(s config.SupervisorConfig) ControllerConfig {
	return ControllerConfig{
		ControlCommand: s.Control.Command,
		ControlDir:     s.Control.Dir,
		StopTimeout:    s.Control.StopTimeout,
		StartTimeout:   s.Control.StartTimeout,
		Settle:         s.Control.Settle,
		SpawnCommand:   s.Spawn.Command,
		SpawnDir:       s.Spawn.Dir,
		SpawnLog:       s.Spawn.LogPath,
		TermGrace:      s.TermGrace,
		StartupGrace:   s.StartupGrace,
	}
}

// Runner executes a command to completion. The default runs it with os/exec.
type Runner func(ctx context.Context, dir string, argv []string) error

// Controller stops and starts the collector, through its control command or
// directly through the process registry.
type Controller struct {
	registry Registry
	cfg      ControllerConfig
	run      Runner
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewController creates a controller.
func NewController(registry Registry, cfg ControllerConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 60 * time.Second
	}
	if cfg.TermGrace <= 0 {
		cfg.TermGrace = 10 * time.Second
	}
	return &Controller{
		registry: registry,
		cfg:      cfg,
		run:      execRunner,
		sleep:    sleepContext,
		logger:   logger.With("component", "process"),
	}
}

// Registry returns the controller's registry.
func (c *Controller) Registry() Registry {
	return c.registry
}

// Count returns the number of running collector processes.
func (c *Controller) Count(ctx context.Context) (int, error) {
	procs, err := c.registry.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(procs), nil
}

// Control runs "<control command> <action>" bounded by the action's timeout
// and then waits the settle period. Exit status 0 is success.
func (c *Controller) Control(ctx context.Context, action string) error {
	if len(c.cfg.ControlCommand) == 0 {
		return ErrNoControlCommand
	}

	timeout := c.cfg.StartTimeout
	if action == ActionStop {
		timeout = c.cfg.StopTimeout
	}

	argv := append(append([]string{}, c.cfg.ControlCommand...), action)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.run(runCtx, c.cfg.ControlDir, argv)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		c.logger.Warn("control command failed", "action", action, "command", strings.Join(argv, " "), "error", err)
		return fmt.Errorf("control %s: %w", action, err)
	}

	c.logger.Info("control command succeeded", "action", action, "duration", time.Since(start))
	return c.sleep(ctx, c.cfg.Settle)
}

// TerminateAll sends SIGTERM to every collector process, waits up to the
// termination grace for them to exit and kills the survivors. It returns the
// number of processes that were signalled.
func (c *Controller) TerminateAll(ctx context.Context) (int, error) {
	procs, err := c.registry.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(procs) == 0 {
		return 0, nil
	}

	var errs []error
	for _, p := range procs {
		if err := c.registry.Terminate(ctx, p.PID); err != nil && c.registry.Alive(ctx, p.PID) {
			errs = append(errs, fmt.Errorf("terminate %d: %w", p.PID, err))
			continue
		}
		c.logger.Info("terminated collector process", "pid", p.PID)
	}

	deadline := time.Now().Add(c.cfg.TermGrace)
	for {
		survivors := c.alive(ctx, procs)
		if len(survivors) == 0 {
			return len(procs), errors.Join(errs...)
		}
		if !time.Now().Before(deadline) {
			for _, p := range survivors {
				if err := c.registry.Kill(ctx, p.PID); err != nil && c.registry.Alive(ctx, p.PID) {
					errs = append(errs, fmt.Errorf("kill %d: %w", p.PID, err))
					continue
				}
				c.logger.Warn("killed collector process after grace period", "pid", p.PID, "grace", c.cfg.TermGrace)
			}
			return len(procs), errors.Join(errs...)
		}
		if err := c.sleep(ctx, 200*time.Millisecond); err != nil {
			return len(procs), err
		}
	}
}

func (c *Controller) alive(ctx context.Context, procs []Process) []Process {
	var out []Process
	for _, p := range procs {
		if c.registry.Alive(ctx, p.PID) {
			out = append(out, p)
		}
	}
	return out
}

// Stop shuts the collector down: the control command first, then
// TerminateAll for anything still running.
func (c *Controller) Stop(ctx context.Context) error {
	ctrlErr := c.Control(ctx, ActionStop)
	if ctrlErr == nil {
		if n, err := c.Count(ctx); err == nil && n == 0 {
			return nil
		}
	}

	n, err := c.TerminateAll(ctx)
	if err != nil {
		return errors.Join(ctrlErr, err)
	}
	if n > 0 {
		c.logger.Info("collector processes stopped directly", "count", n)
	}
	return nil
}

// Spawn starts the collector entry point detached from warden and confirms it
// is still alive after the startup grace.
func (c *Controller) Spawn(ctx context.Context) (int, error) {
	if len(c.cfg.SpawnCommand) == 0 {
		return 0, ErrNoSpawnCommand
	}

	// not bound to ctx: the collector must outlive the call
	cmd := exec.Command(c.cfg.SpawnCommand[0], c.cfg.SpawnCommand[1:]...) // #nosec G204 -- command from operator config
	cmd.Dir = c.cfg.SpawnDir

	var out io.WriteCloser
	if c.cfg.SpawnLog != "" {
		f, err := os.OpenFile(c.cfg.SpawnLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, fmt.Errorf("open spawn log: %w", err)
		}
		out = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return 0, fmt.Errorf("spawn %s: %w", c.cfg.SpawnCommand[0], err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		if out != nil {
			out.Close()
		}
	}()

	pid := cmd.Process.Pid
	c.logger.Info("collector spawned", "pid", pid, "command", strings.Join(c.cfg.SpawnCommand, " "))

	if c.cfg.StartupGrace <= 0 {
		return pid, nil
	}

	timer := time.NewTimer(c.cfg.StartupGrace)
	defer timer.Stop()
	select {
	case err := <-exited:
		if err == nil {
			return pid, fmt.Errorf("%w: exit status 0", ErrExitedEarly)
		}
		return pid, fmt.Errorf("%w: %v", ErrExitedEarly, err)
	case <-timer.C:
		return pid, nil
	case <-ctx.Done():
		return pid, ctx.Err()
	}
}

func execRunner(ctx context.Context, dir string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- command from operator config
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("%w: %s", err, truncate(msg, 200))
		}
		return err
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
