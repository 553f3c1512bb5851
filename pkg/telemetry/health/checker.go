package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"agentceli/warden/pkg/telemetry/metrics"
)

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// Check statuses.
const (
	StatusOK        = "ok"
	StatusUnhealthy = "unhealthy"
)

// Report statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	// Status is "ok" or "unhealthy".
	Status string `json:"status"`

	// Message is the failure reason for an unhealthy check.
	Message string `json:"message,omitempty"`

	// DurationMS is how long the check took in milliseconds.
	DurationMS float64 `json:"duration_ms"`

	err error
}

// Healthy reports whether the check passed.
func (r CheckResult) Healthy() bool {
	return r.Status == StatusOK
}

// Err returns the error the check failed with, or nil.
func (r CheckResult) Err() error {
	return r.err
}

// Report is the outcome of running every registered check.
type Report struct {
	// Status is "healthy" when every check passed, otherwise "degraded".
	Status string `json:"status"`

	// Checks holds the result of each check by name.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Timestamp is when the checks finished.
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Failed returns the names of the failed checks, sorted.
func (r Report) Failed() []string {
	var names []string
	for name, res := range r.Checks {
		if !res.Healthy() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Err joins the errors of every failed check, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, name := range r.Failed() {
		res := r.Checks[name]
		err := res.err
		if err == nil {
			err = errors.New(res.Message)
		}
		errs = append(errs, &CheckError{Name: name, Err: err})
	}
	return errors.Join(errs...)
}

// CheckError names the check that failed.
type CheckError struct {
	Name string
	Err  error
}

func (e *CheckError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// Checker runs named health checks concurrently, each bounded by a timeout.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc

	checkTimeout time.Duration
	metrics      *metrics.Collector
	now          func() time.Time
}

// ErrCheckTimeout is returned when a health check times out.
var ErrCheckTimeout = errors.New("health check timeout")

// New creates a new health checker with the specified check timeout.
// If timeout is 0, defaults to 5 seconds per check. m may be nil.
func New(checkTimeout time.Duration, m *metrics.Collector) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}

	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		metrics:      m,
		now:          time.Now,
	}
}

// RegisterCheck registers a health check function for a named component.
// If a check with the same name already exists, it will be replaced.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.checks[name] = check
}

// UnregisterCheck removes a health check for a named component.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.checks, name)
}

// CheckLiveness reports that the process is up. It runs no checks.
func (c *Checker) CheckLiveness(ctx context.Context) Report {
	return Report{
		Status:    StatusHealthy,
		Timestamp: c.now(),
	}
}

// Run executes every registered check concurrently and aggregates the results.
// With no checks registered the report is healthy.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()

			result := c.runCheck(ctx, check)
			c.metrics.RecordCheck(name, result.Healthy(), time.Duration(result.DurationMS*float64(time.Millisecond)))

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
		}(name, check)
	}

	wg.Wait()

	status := StatusHealthy
	for _, result := range results {
		if !result.Healthy() {
			status = StatusDegraded
		}
	}

	return Report{
		Status:    status,
		Checks:    results,
		Timestamp: c.now(),
	}
}

// runCheck executes a single health check with timeout.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()

	// a check that ignores its context must not block the report
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-checkCtx.Done():
		err = ErrCheckTimeout
	}

	result := CheckResult{
		Status:     StatusOK,
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		result.err = err
	}
	return result
}

// ListChecks returns the names of all registered health checks, sorted.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
