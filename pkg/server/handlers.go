package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/limits"
	"agentceli/warden/pkg/monitor"
	"agentceli/warden/pkg/security/auth"
	"agentceli/warden/pkg/server/middleware"
	"agentceli/warden/pkg/supervisor"
	"agentceli/warden/pkg/telemetry/health"
	"agentceli/warden/pkg/telemetry/tracing"
	"agentceli/warden/pkg/watchdog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// defaultAlertLimit is the number of alerts returned without ?limit.
const defaultAlertLimit = 50

// ManualStopReason is recorded when the kill switch is engaged through the API
// without a reason.
const ManualStopReason = "manual emergency stop"

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.deps.Health.LivenessHandler())
	mux.HandleFunc("GET /ready", s.deps.Health.ReadinessHandler())
	mux.HandleFunc("GET /version", health.VersionHandler(s.deps.Version))
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics.Handler())
	}

	// Authentication wraps each /v1 handler rather than the mux, so the
	// outer middleware still sees the matched pattern on its request.
	protect := auth.Middleware(s.deps.Auth, s.logger)
	v1 := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	v1("GET /v1/status", s.handleStatus)
	v1("GET /v1/alerts", s.handleAlerts)
	v1("GET /v1/recommendations", s.handleRecommendations)

	v1("POST /v1/governor/check", s.handleCheck)
	v1("POST /v1/governor/record", s.handleRecord)
	v1("POST /v1/governor/reserve", s.handleReserve)
	v1("POST /v1/governor/reservations/{id}/commit", s.handleCommit)
	v1("POST /v1/governor/reservations/{id}/release", s.handleRelease)

	v1("POST /v1/emergency/stop", s.handleEmergencyStop)
	v1("POST /v1/emergency/resume", s.handleResume)
	v1("POST /v1/ledger/reset", s.handleLedgerReset)
	v1("POST /v1/collector/release", s.handleCollectorRelease)
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	Timestamp  time.Time          `json:"timestamp"`
	Governor   limits.Status      `json:"governor"`
	Supervisor *supervisor.Status `json:"supervisor,omitempty"`
	Watchdog   *watchdog.Status   `json:"watchdog,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Timestamp: time.Now(),
		Governor:  s.deps.Governor.Status(),
	}
	if s.deps.Supervisor != nil {
		st := s.deps.Supervisor.Status()
		resp.Supervisor = &st
	}
	if s.deps.Watchdog != nil {
		st := s.deps.Watchdog.Status()
		resp.Watchdog = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		unavailable(w, r, "alert store")
		return
	}

	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list := s.deps.Alerts.Recent(limit)
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": list, "count": len(list)})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		unavailable(w, r, "usage monitor")
		return
	}
	recs := s.deps.Monitor.Recommendations()
	if recs == nil {
		recs = []monitor.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

// CallRequest is the body of the check, record and reserve endpoints.
type CallRequest struct {
	Source  string          `json:"source"`
	Cost    decimal.Decimal `json:"cost"`
	Success *bool           `json:"success,omitempty"`
}

// CheckResponse is the body returned by POST /v1/governor/check.
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Limit   string `json:"limit,omitempty"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decodeCall(w, r, &req) {
		return
	}

	reason, err := s.deps.Governor.Check(req.Source, req.Cost)
	annotate(r, req, err)
	switch {
	case errors.Is(err, limits.ErrInvalidCost):
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_cost", err.Error())
	case err != nil:
		writeJSON(w, http.StatusOK, CheckResponse{Reason: err.Error(), Limit: limitType(err)})
	default:
		writeJSON(w, http.StatusOK, CheckResponse{Allowed: true, Reason: reason})
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decodeCall(w, r, &req) {
		return
	}
	if req.Success == nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "success is required")
		return
	}

	s.deps.Governor.RecordOutcome(req.Source, req.Cost, *req.Success)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decodeCall(w, r, &req) {
		return
	}

	res, err := s.deps.Governor.Reserve(req.Source, req.Cost)
	annotate(r, req, err)
	switch {
	case errors.Is(err, limits.ErrInvalidCost):
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_cost", err.Error())
	case err != nil:
		middleware.WriteError(w, r, http.StatusTooManyRequests, limitType(err), err.Error())
	default:
		writeJSON(w, http.StatusCreated, res)
	}
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Success *bool `json:"success"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Success == nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "success is required")
		return
	}

	if err := s.deps.Governor.Commit(r.PathValue("id"), *body.Success); err != nil {
		reservationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Governor.Release(r.PathValue("id")); err != nil {
		reservationError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Reason == "" {
		body.Reason = ManualStopReason
	}

	s.logger.Warn("emergency stop requested via API",
		"reason", body.Reason,
		"operator", auth.PrincipalName(r.Context()),
		"request_id", middleware.GetRequestID(r.Context()),
	)
	s.deps.Governor.EmergencyStopAll(body.Reason)
	writeJSON(w, http.StatusOK, s.deps.Governor.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("resume requested via API", "operator", auth.PrincipalName(r.Context()), "request_id", middleware.GetRequestID(r.Context()))
	s.deps.Governor.Resume()
	writeJSON(w, http.StatusOK, s.deps.Governor.Status())
}

func (s *Server) handleLedgerReset(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("ledger reset requested via API", "operator", auth.PrincipalName(r.Context()), "request_id", middleware.GetRequestID(r.Context()))
	s.deps.Governor.ResetDaily()
	writeJSON(w, http.StatusOK, s.deps.Governor.Status())
}

func (s *Server) handleCollectorRelease(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watchdog == nil {
		unavailable(w, r, "dataset watchdog")
		return
	}
	released := s.deps.Watchdog.Release()
	s.logger.Info("collector release requested via API", "released", released, "operator", auth.PrincipalName(r.Context()))
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// decodeCall decodes a CallRequest and requires a source.
func decodeCall(w http.ResponseWriter, r *http.Request, req *CallRequest) bool {
	if !decode(w, r, req) {
		return false
	}
	if req.Source == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, "invalid_request", "source is required")
		return false
	}
	return true
}

func reservationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, limits.ErrUnknownReservation) {
		middleware.WriteError(w, r, http.StatusNotFound, "unknown_reservation", err.Error())
		return
	}
	middleware.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
}

func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	middleware.WriteError(w, r, http.StatusServiceUnavailable, "unavailable", what+" is not running")
}

// annotate attaches the admission decision to the request span.
func annotate(r *http.Request, req CallRequest, err error) {
	if err == nil {
		tracing.AnnotateDecision(r.Context(), req.Source, req.Cost.String(), tracing.DecisionAllowed, "")
		return
	}
	tracing.AnnotateDecision(r.Context(), req.Source, req.Cost.String(), tracing.DecisionRejected, limitType(err))
}

// limitType returns the limit type of a governor rejection.
func limitType(err error) string {
	var le *limits.LimitError
	if errors.As(err, &le) {
		return le.Type
	}
	return "rejected"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
