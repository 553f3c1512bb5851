package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/limits"
	"agentceli/warden/pkg/monitor"
	"agentceli/warden/pkg/security/auth"
	"agentceli/warden/pkg/server/middleware"
	"agentceli/warden/pkg/supervisor"
	"agentceli/warden/pkg/telemetry/health"
	"agentceli/warden/pkg/telemetry/metrics"
	"agentceli/warden/pkg/telemetry/tracing"
	"agentceli/warden/pkg/watchdog"
)

// SupervisorStatus reports the supervisor's last view of the collector.
type SupervisorStatus interface {
	Status() supervisor.Status
}

// WatchdogControl reports the watchdog state and releases its halt.
type WatchdogControl interface {
	Status() watchdog.Status
	Release() bool
}

// Recommender produces cost optimization recommendations.
type Recommender interface {
	Recommendations() []monitor.Recommendation
}

// AlertLister returns the most recent alerts.
type AlertLister interface {
	Recent(n int) []alerts.Alert
}

// Deps are the components the control API exposes. Governor is required;
// routes for a nil component answer 503.
type Deps struct {
	Governor   *limits.Governor
	Monitor    Recommender
	Supervisor SupervisorStatus
	Watchdog   WatchdogControl
	Alerts     AlertLister

	// Health backs /health and /ready. Defaults to a checker with no checks.
	Health *health.Checker

	Metrics     *metrics.Collector
	MetricsPath string
	Version     health.VersionInfo

	// Tracer opens a span per request. Nil disables tracing.
	Tracer *tracing.Tracer

	// Auth guards the /v1 routes. Nil or empty leaves them open.
	Auth *auth.Validator
}

// Server is the HTTP control API.
type Server struct {
	config     *config.ServerConfig
	deps       Deps
	logger     *slog.Logger
	httpServer *http.Server

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         string
}

// NewServer creates a control API server.
func NewServer(cfg *config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = health.New(0, deps.Metrics)
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
}

// Start listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.config.ListenAddress, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.isRunning = true
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", "address", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("control API stopped")
	})

	return shutdownErr
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(s.logger, s.deps.Metrics)(handler)
	if s.deps.Tracer.Enabled() {
		handler = tracing.Middleware(s.deps.Tracer)(handler)
	}
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)
	return handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listen address once Start has been called.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
