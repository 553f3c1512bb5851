package process

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRegistry is an in-memory process table. Processes listed in stubborn
// ignore SIGTERM.
type fakeRegistry struct {
	mu       sync.Mutex
	procs    map[int32]Process
	stubborn map[int32]bool
	signals  []string
}

func newFakeRegistry(pids ...int32) *fakeRegistry {
	r := &fakeRegistry{procs: map[int32]Process{}, stubborn: map[int32]bool{}}
	for _, pid := range pids {
		r.procs[pid] = Process{PID: pid, Cmdline: "python3 agentceli_hybrid.py"}
	}
	return r
}

func (r *fakeRegistry) List(context.Context) ([]Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Process
	for _, p := range r.procs {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeRegistry) Terminate(_ context.Context, pid int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, "TERM")
	if !r.stubborn[pid] {
		delete(r.procs, pid)
	}
	return nil
}

func (r *fakeRegistry) Kill(_ context.Context, pid int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, "KILL")
	delete(r.procs, pid)
	return nil
}

func (r *fakeRegistry) Alive(_ context.Context, pid int32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[pid]
	return ok
}

func newTestController(reg Registry, cfg ControllerConfig) *Controller {
	c := NewController(reg, cfg, nil)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

// ============================================================================
// Matcher
// ============================================================================

func TestCmdlineMatcher(t *testing.T) {
	m := CmdlineMatcher{Require: []string{"agentceli", "python"}, Exclude: []string{"watchdog", "warden"}}

	tests := []struct {
		cmdline string
		want    bool
	}{
		{"python3 agentceli_hybrid.py", true},
		{"/usr/bin/Python3 /opt/AgentCeli/agentceli_master.py --fast", true},
		{"python3 agentceli_watchdog.py", false},
		{"python3 other_collector.py", false},
		{"node agentceli.js", false},
		{"warden run --config agentceli.yaml python", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.cmdline, func(t *testing.T) {
			if got := m.Match(tt.cmdline); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.cmdline, got, tt.want)
			}
		})
	}
}

func TestSystemRegistry_ExcludesSelf(t *testing.T) {
	// matches every process, including this test binary
	reg := NewSystemRegistry(CmdlineMatcher{})
	procs, err := reg.List(context.Background())
	if err != nil {
		t.Skipf("process table not readable here: %v", err)
	}
	self := int32(os.Getpid())
	for _, p := range procs {
		if p.PID == self {
			t.Fatal("registry reported its own process")
		}
	}
	if err := reg.Terminate(context.Background(), self); err == nil {
		t.Error("registry agreed to signal its own process")
	}
	if !reg.Alive(context.Background(), self) {
		t.Error("own process reported dead")
	}
}

// ============================================================================
// Control command
// ============================================================================

func TestController_Control(t *testing.T) {
	tests := []struct {
		name    string
		action  string
		runErr  error
		wantErr bool
		wantTO  time.Duration
	}{
		{"stop succeeds", ActionStop, nil, false, 30 * time.Second},
		{"start succeeds", ActionStart, nil, false, 60 * time.Second},
		{"non-zero exit", ActionStart, errors.New("exit status 1"), true, 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(newFakeRegistry(), ControllerConfig{ControlCommand: []string{"python3", "agentceli_control.py"}})

			var gotArgv []string
			var gotTimeout time.Duration
			c.run = func(ctx context.Context, _ string, argv []string) error {
				gotArgv = argv
				deadline, _ := ctx.Deadline()
				gotTimeout = time.Until(deadline).Round(time.Second)
				return tt.runErr
			}

			err := c.Control(context.Background(), tt.action)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Control() error = %v, wantErr %v", err, tt.wantErr)
			}
			if strings.Join(gotArgv, " ") != "python3 agentceli_control.py "+tt.action {
				t.Errorf("argv = %v", gotArgv)
			}
			if gotTimeout != tt.wantTO {
				t.Errorf("timeout = %s, want %s", gotTimeout, tt.wantTO)
			}
		})
	}
}

func TestController_ControlTimeout(t *testing.T) {
	c := newTestController(newFakeRegistry(), ControllerConfig{
		ControlCommand: []string{"ctl"},
		StopTimeout:    10 * time.Millisecond,
	})
	c.run = func(ctx context.Context, _ string, _ []string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	err := c.Control(context.Background(), ActionStop)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("got %v, want timeout error", err)
	}
}

func TestController_ControlNotConfigured(t *testing.T) {
	c := newTestController(newFakeRegistry(), ControllerConfig{})
	if err := c.Control(context.Background(), ActionStart); !errors.Is(err, ErrNoControlCommand) {
		t.Errorf("got %v", err)
	}
}

// ============================================================================
// Direct termination
// ============================================================================

func TestController_TerminateAll(t *testing.T) {
	reg := newFakeRegistry(101, 102)
	c := newTestController(reg, ControllerConfig{TermGrace: time.Millisecond})

	n, err := c.TerminateAll(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("TerminateAll = %d, %v", n, err)
	}
	for _, s := range reg.signals {
		if s == "KILL" {
			t.Error("cooperative processes were killed")
		}
	}
}

func TestController_TerminateAllKillsSurvivors(t *testing.T) {
	reg := newFakeRegistry(101, 102)
	reg.stubborn[102] = true
	c := newTestController(reg, ControllerConfig{TermGrace: time.Millisecond})

	if _, err := c.TerminateAll(context.Background()); err != nil {
		t.Fatalf("TerminateAll: %v", err)
	}
	if n, _ := c.Count(context.Background()); n != 0 {
		t.Errorf("%d processes survived", n)
	}
	kills := 0
	for _, s := range reg.signals {
		if s == "KILL" {
			kills++
		}
	}
	if kills != 1 {
		t.Errorf("kills = %d, want 1", kills)
	}
}

func TestController_StopFallsBackToTerminate(t *testing.T) {
	reg := newFakeRegistry(101)
	c := newTestController(reg, ControllerConfig{ControlCommand: []string{"ctl"}, TermGrace: time.Millisecond})
	c.run = func(context.Context, string, []string) error { return errors.New("exit status 2") }

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n, _ := c.Count(context.Background()); n != 0 {
		t.Errorf("collector still running after Stop")
	}
}

func TestController_StopViaControlCommand(t *testing.T) {
	reg := newFakeRegistry(101)
	c := newTestController(reg, ControllerConfig{ControlCommand: []string{"ctl"}})
	c.run = func(context.Context, string, []string) error {
		reg.mu.Lock()
		delete(reg.procs, 101)
		reg.mu.Unlock()
		return nil
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(reg.signals) != 0 {
		t.Errorf("signals sent despite successful control stop: %v", reg.signals)
	}
}

// ============================================================================
// Spawn
// ============================================================================

func TestController_Spawn(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	tests := []struct {
		name    string
		command []string
		wantErr error
	}{
		{"survives grace", []string{"/bin/sh", "-c", "sleep 2"}, nil},
		{"exits early", []string{"/bin/sh", "-c", "exit 3"}, ErrExitedEarly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(newFakeRegistry(), ControllerConfig{
				SpawnCommand: tt.command,
				StartupGrace: 300 * time.Millisecond,
			})

			pid, err := c.Spawn(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Spawn: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if pid == 0 {
				t.Error("no pid returned")
			}
			if tt.wantErr == nil {
				if p, err := os.FindProcess(pid); err == nil {
					_ = p.Kill()
				}
			}
		})
	}
}

func TestController_SpawnNotConfigured(t *testing.T) {
	c := newTestController(newFakeRegistry(), ControllerConfig{})
	if _, err := c.Spawn(context.Background()); !errors.Is(err, ErrNoSpawnCommand) {
		t.Errorf("got %v", err)
	}
}
