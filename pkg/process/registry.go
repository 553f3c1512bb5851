package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// Process is one running process that belongs to the collector.
type Process struct {
	PID       int32     `json:"pid"`
	Cmdline   string    `json:"cmdline"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Registry lists and signals the collector's processes.
type Registry interface {
	// List returns every running process that belongs to the collector.
	List(ctx context.Context) ([]Process, error)

	// Terminate asks pid to exit (SIGTERM).
	Terminate(ctx context.Context, pid int32) error

	// Kill forces pid to exit (SIGKILL).
	Kill(ctx context.Context, pid int32) error

	// Alive reports whether pid is still running.
	Alive(ctx context.Context, pid int32) bool
}

// Matcher decides whether a command line belongs to the collector.
type Matcher interface {
	Match(cmdline string) bool
}

// CmdlineMatcher matches a command line by case-insensitive substrings.
// Every Require entry must appear and no Exclude entry may appear.
type CmdlineMatcher struct {
	Require []string
	Exclude []string
}

// Match implements Matcher.
func (m CmdlineMatcher) Match(cmdline string) bool {
	if cmdline == "" {
		return false
	}
	lower := strings.ToLower(cmdline)
	for _, s := range m.Require {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	for _, s := range m.Exclude {
		if strings.Contains(lower, strings.ToLower(s)) {
			return false
		}
	}
	return true
}

// SystemRegistry is a Registry over the host's process table.
// It never reports the warden's own process.
type SystemRegistry struct {
	matcher Matcher
	self    int32
}

// NewSystemRegistry creates a registry that reports processes accepted by matcher.
func NewSystemRegistry(matcher Matcher) *SystemRegistry {
	return &SystemRegistry{
		matcher: matcher,
		self:    int32(os.Getpid()),
	}
}

// List implements Registry. Processes that exit or deny access while being
// inspected are skipped.
func (r *SystemRegistry) List(ctx context.Context) ([]Process, error) {
	procs, err := gopsprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var out []Process
	for _, p := range procs {
		if p.Pid == r.self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || !r.matcher.Match(cmdline) {
			continue
		}
		proc := Process{PID: p.Pid, Cmdline: cmdline}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			proc.StartedAt = time.UnixMilli(ms)
		}
		out = append(out, proc)
	}
	return out, nil
}

// Terminate implements Registry.
func (r *SystemRegistry) Terminate(ctx context.Context, pid int32) error {
	p, err := r.lookup(ctx, pid)
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

// Kill implements Registry.
func (r *SystemRegistry) Kill(ctx context.Context, pid int32) error {
	p, err := r.lookup(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

// Alive implements Registry.
func (r *SystemRegistry) Alive(ctx context.Context, pid int32) bool {
	p, err := gopsprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		return false
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}
	// an exited child that was not yet reaped still has a table entry
	if status, err := p.StatusWithContext(ctx); err == nil {
		for _, s := range status {
			if s == gopsprocess.Zombie {
				return false
			}
		}
	}
	return true
}

func (r *SystemRegistry) lookup(ctx context.Context, pid int32) (*gopsprocess.Process, error) {
	if pid == r.self {
		return nil, errors.New("refusing to signal own process")
	}
	p, err := gopsprocess.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	return p, nil
}
