package limits

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/limits/budget"
	"agentceli/warden/pkg/limits/ratelimit"
	"agentceli/warden/pkg/limits/storage"
	"agentceli/warden/pkg/telemetry/logging"
	"agentceli/warden/pkg/telemetry/metrics"
)

// dayLayout formats ledger days.
const dayLayout = "2006-01-02"

// Options carries the governor's collaborators. Every field is optional.
type Options struct {
	// Logger receives governor logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Alerts receives HIGH_COST alerts. Defaults to alerts.Discard.
	Alerts alerts.Sink

	// Metrics records decisions and spend.
	Metrics *metrics.Collector

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Governor decides whether the collector may call an upstream API and keeps
// the daily spend ledger.
//
// All state sits behind one mutex so Status is a consistent snapshot across
// sources. CanProceed followed by RecordOutcome is not atomic: two callers may
// both be admitted for the last slot. Callers that need the guarantee use
// Reserve and Commit, or Do.
//
// # Example
//
//	gov := limits.NewGovernor(cfg, limits.Options{Logger: logger})
//
//	err := gov.Do(ctx, "santiment", decimal.RequireFromString("0.02"), func(ctx context.Context) error {
//	    return fetchSocialVolume(ctx)
//	})
type Governor struct {
	cfg     Config
	logger  *slog.Logger
	sink    alerts.Sink
	metrics *metrics.Collector
	now     func() time.Time

	mu              sync.Mutex
	sources         map[string]*sourceState
	ledger          *budget.Ledger
	reservations    map[string]*Reservation
	expired         map[string]*Reservation
	emergency       bool
	emergencyReason string
	emergencySince  time.Time
}

// sourceState is the mutable part of one governed source.
type sourceState struct {
	Source

	window  ratelimit.Counter
	history []RequestRecord

	requestsToday int
	reserved      int
	pending       decimal.Decimal
}

// NewGovernor creates a governor for cfg. The ledger starts empty for the
// current day; Restore reloads persisted spend.
func NewGovernor(cfg Config, opts Options) *Governor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Alerts == nil {
		opts.Alerts = alerts.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 2 * time.Hour
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 2 * time.Minute
	}

	g := &Governor{
		cfg:          cfg,
		logger:       opts.Logger.With("component", "governor"),
		sink:         opts.Alerts,
		metrics:      opts.Metrics,
		now:          opts.Now,
		sources:      make(map[string]*sourceState, len(cfg.Sources)),
		ledger:       budget.NewLedger(opts.Now().Format(dayLayout)),
		reservations: make(map[string]*Reservation),
		expired:      make(map[string]*Reservation),
	}

	for _, src := range cfg.Sources {
		g.sources[src.Name] = &sourceState{
			Source: src,
			window: ratelimit.New(cfg.WindowMode, time.Minute),
		}
	}

	return g
}

// CanProceed reports whether a call to source costing cost may be made now,
// with a human-readable reason.
//
// The checks run in order: emergency stop, global daily limit, the source's
// RPM, the source's daily cap. Unknown sources are allowed.
func (g *Governor) CanProceed(source string, cost decimal.Decimal) (bool, string) {
	reason, err := g.Check(source, cost)
	if err != nil {
		return false, err.Error()
	}
	return true, reason
}

// Check is CanProceed returning a *LimitError on rejection.
func (g *Governor) Check(source string, cost decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reason, err := g.checkLocked(source, cost, g.now())
	g.recordDecision(source, err)
	return reason, err
}

// checkLocked applies every admission rule. Caller must hold g.mu.
func (g *Governor) checkLocked(source string, cost decimal.Decimal, now time.Time) (string, error) {
	if cost.IsNegative() {
		return "", fmt.Errorf("%w: %s", ErrInvalidCost, cost)
	}

	if g.emergency {
		g.logger.Warn("emergency stop: request blocked", "source", source)
		return "", &LimitError{
			Type:   LimitEmergency,
			Source: source,
			Reason: "Emergency stop activated: " + g.emergencyReason,
			Err:    ErrEmergencyStop,
		}
	}

	committed := g.ledger.Total().Add(g.pendingTotalLocked())
	if committed.GreaterThanOrEqual(g.cfg.DailyCostLimit) {
		g.logger.Warn("daily limit exceeded", "total", committed.StringFixed(4), "limit", g.cfg.DailyCostLimit.StringFixed(2))
		return "", &LimitError{
			Type:    LimitGlobalBudget,
			Source:  source,
			Limit:   g.cfg.DailyCostLimit,
			Current: committed,
			Reason:  fmt.Sprintf("Daily cost limit exceeded: $%s", committed.StringFixed(4)),
			Err:     ErrBudgetExceeded,
		}
	}

	st, ok := g.sources[source]
	if !ok {
		g.logger.Warn("unknown source allowed", "source", source)
		return "Unknown API - allowed", nil
	}

	rate := ratelimit.Check(st.window, st.RPM, now)
	if !rate.Allowed {
		g.logger.Warn("rate limit", "source", source, "current", rate.Current, "rpm", st.RPM)
		return "", &LimitError{
			Type:    LimitRate,
			Source:  source,
			Limit:   st.RPM,
			Current: rate.Current,
			Reason:  fmt.Sprintf("Rate limit exceeded: %d/%d RPM", rate.Current, st.RPM),
			Err:     ErrRateLimitExceeded,
		}
	}

	status := g.ledger.Check(source, cost, st.pending, st.DailyCostLimit)
	if !status.Allowed {
		would := status.Used.Add(cost)
		g.logger.Warn("cost limit", "source", source, "would_spend", would.StringFixed(4), "cap", st.DailyCostLimit.StringFixed(2))
		return "", &LimitError{
			Type:    LimitSourceBudget,
			Source:  source,
			Limit:   st.DailyCostLimit,
			Current: would,
			Reason:  fmt.Sprintf("Daily cost limit for %s: $%s", source, would.StringFixed(4)),
			Err:     ErrBudgetExceeded,
		}
	}

	return "Request allowed", nil
}

// RecordOutcome records a completed call. The request always counts against
// the source's RPM; cost is added to the ledger only when success is true.
func (g *Governor) RecordOutcome(source string, cost decimal.Decimal, success bool) {
	g.mu.Lock()
	pending := g.recordLocked(source, cost, success, g.now(), true)
	g.mu.Unlock()

	g.emit(pending)
}

// recordLocked applies one outcome and returns alerts to send once the lock
// is released. Caller must hold g.mu.
func (g *Governor) recordLocked(source string, cost decimal.Decimal, success bool, now time.Time, countWindow bool) []alerts.Alert {
	if cost.IsNegative() {
		g.logger.Warn("negative cost ignored", "source", source, "cost", cost.String())
		cost = decimal.Zero
	}

	if st, ok := g.sources[source]; ok {
		if countWindow {
			st.window.Add(now)
		}
		st.history = append(st.history, RequestRecord{
			Source:    source,
			Timestamp: now,
			Cost:      cost,
			Success:   success,
		})
		if over := len(st.history) - g.cfg.HistorySize; over > 0 {
			st.history = append(st.history[:0:0], st.history[over:]...)
		}
		st.requestsToday++
	}

	if success && cost.IsPositive() {
		g.ledger.Add(source, cost)
	}
	g.metrics.RecordOutcome(source, success, cost.InexactFloat64())

	var out []alerts.Alert
	if cost.GreaterThan(g.cfg.HighCostThreshold) {
		g.logger.Warn("high cost request", "source", source, "cost", cost.StringFixed(4))
		out = append(out, alerts.New(alerts.TypeHighCost, alerts.SeverityHigh, source,
			fmt.Sprintf("High cost request to %s: $%s", source, cost.StringFixed(4))).
			WithCost(cost).At(now))
	}

	total := g.ledger.Total()
	warnAt := g.cfg.DailyCostLimit.Mul(decimal.NewFromFloat(g.cfg.WarnThreshold))
	if total.GreaterThan(warnAt) {
		g.logger.Warn("approaching daily limit", "total", total.StringFixed(4), "limit", g.cfg.DailyCostLimit.StringFixed(2))
	}

	g.updateGaugesLocked()
	return out
}

// Status returns a consistent snapshot of the governor.
func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	total := g.ledger.Total()

	s := Status{
		Timestamp:       now,
		Day:             g.ledger.Day(),
		Emergency:       g.emergency,
		EmergencyReason: g.emergencyReason,
		TotalDailyCost:  total,
		DailyLimit:      g.cfg.DailyCostLimit,
		UsagePercent:    budget.Percent(total, g.cfg.DailyCostLimit),
		WindowMode:      g.cfg.WindowMode,
		Reservations:    len(g.reservations),
		Sources:         make(map[string]SourceStatus, len(g.sources)),
	}
	if g.emergency {
		since := g.emergencySince
		s.EmergencySince = &since
	}

	for name, st := range g.sources {
		count := st.window.Count(now)
		spent := g.ledger.Spent(name)
		rpmPct := float64(count) / float64(st.RPM) * 100
		costPct := budget.Percent(spent, st.DailyCostLimit)

		s.Sources[name] = SourceStatus{
			RequestsInWindow: count,
			RPMLimit:         st.RPM,
			RPMUsagePercent:  rpmPct,
			DailyCost:        spent,
			DailyCostLimit:   st.DailyCostLimit,
			CostUsagePercent: costPct,
			RequestsToday:    st.requestsToday,
			SuccessRate:      successRate(st.history),
			Pending:          st.pending,
			Health:           Classify(rpmPct, costPct),
		}
	}

	return s
}

func successRate(history []RequestRecord) float64 {
	if len(history) == 0 {
		return 100
	}
	ok := 0
	for _, r := range history {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(history)) * 100
}

// EmergencyStopAll engages the kill switch. Every check fails until Resume.
func (g *Governor) EmergencyStopAll(reason string) {
	if reason == "" {
		reason = "Manual activation"
	}

	g.mu.Lock()
	g.emergency = true
	g.emergencyReason = reason
	g.emergencySince = g.now()
	g.mu.Unlock()

	g.metrics.SetEmergency(true)
	logging.Critical(g.logger, "EMERGENCY STOP ACTIVATED", "reason", reason)
}

// Resume disengages the kill switch.
func (g *Governor) Resume() {
	g.mu.Lock()
	was := g.emergency
	g.emergency = false
	g.emergencyReason = ""
	g.emergencySince = time.Time{}
	g.mu.Unlock()

	g.metrics.SetEmergency(false)
	if was {
		logging.Critical(g.logger, "OPERATIONS RESUMED")
	}
}

// IsEmergency reports whether the kill switch is engaged.
func (g *Governor) IsEmergency() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emergency
}

// ResetDaily clears the ledger and the per-day request counters and starts a
// new ledger day. Window data, history, reservations and the kill switch are
// untouched. The governor never calls this itself.
func (g *Governor) ResetDaily() {
	g.mu.Lock()
	day := g.now().Format(dayLayout)
	previous := g.ledger.Day()
	spent := g.ledger.Total()
	g.ledger.Reset(day)
	for _, st := range g.sources {
		st.requestsToday = 0
	}
	g.updateGaugesLocked()
	g.mu.Unlock()

	g.metrics.RecordDailyReset()
	g.logger.Info("daily limits reset", "previous_day", previous, "previous_spend", spent.StringFixed(4), "day", day)
}

// Day returns the ledger day (YYYY-MM-DD).
func (g *Governor) Day() string {
	return g.ledger.Day()
}

// PruneOld drops window data and history older than the retention window and
// releases reservations past their TTL. It returns the number of entries dropped.
//
// An expired reservation is remembered for one retention window, so a call
// that outlived its TTL is still charged when its Commit arrives.
func (g *Governor) PruneOld() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	cutoff := now.Add(-g.cfg.Retention)
	dropped := 0

	for _, st := range g.sources {
		dropped += st.window.Prune(cutoff)

		i := sort.Search(len(st.history), func(i int) bool {
			return !st.history[i].Timestamp.Before(cutoff)
		})
		if i > 0 {
			dropped += i
			st.history = append(st.history[:0:0], st.history[i:]...)
		}
	}

	for id, r := range g.reservations {
		if now.Before(r.ExpiresAt) {
			continue
		}
		g.releaseLocked(id, r)
		g.expired[id] = r
		dropped++
		g.logger.Warn("reservation expired", "id", id, "source", r.Source, "cost", r.Cost.String())
	}
	for id, r := range g.expired {
		if r.ExpiresAt.Before(cutoff) {
			delete(g.expired, id)
		}
	}

	if dropped > 0 {
		g.logger.Debug("pruned old data", "entries", dropped)
	}
	g.updateGaugesLocked()
	return dropped
}

// Sources returns the governed sources sorted by name.
func (g *Governor) Sources() []Source {
	out := make([]Source, len(g.cfg.Sources))
	copy(out, g.cfg.Sources)
	return out
}

// History returns a copy of the recent request history of source.
func (g *Governor) History(source string) []RequestRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.sources[source]
	if !ok {
		return nil
	}
	out := make([]RequestRecord, len(st.history))
	copy(out, st.history)
	return out
}

// Snapshot captures the persistent part of the governor.
func (g *Governor) Snapshot() *storage.LedgerState {
	g.mu.Lock()
	defer g.mu.Unlock()

	requests := make(map[string]int, len(g.sources))
	for name, st := range g.sources {
		if st.requestsToday > 0 {
			requests[name] = st.requestsToday
		}
	}

	return &storage.LedgerState{
		Day:             g.ledger.Day(),
		Costs:           g.ledger.Snapshot(),
		Requests:        requests,
		Emergency:       g.emergency,
		EmergencyReason: g.emergencyReason,
		UpdatedAt:       g.now(),
	}
}

// Restore reloads a snapshot. The kill switch is restored whatever the day;
// spend and request counters only when state belongs to the current ledger
// day. It reports whether spend was restored.
func (g *Governor) Restore(state *storage.LedgerState) bool {
	if state == nil {
		return false
	}

	g.mu.Lock()
	if state.Emergency {
		g.emergency = true
		g.emergencyReason = state.EmergencyReason
		g.emergencySince = state.UpdatedAt
	}

	restored := state.Day == g.ledger.Day()
	if restored {
		g.ledger.Restore(state.Day, state.Costs)
		for name, n := range state.Requests {
			if st, ok := g.sources[name]; ok {
				st.requestsToday = n
			}
		}
	}
	g.updateGaugesLocked()
	emergency := g.emergency
	g.mu.Unlock()

	g.metrics.SetEmergency(emergency)
	g.logger.Info("ledger state restored",
		"day", state.Day,
		"spend_restored", restored,
		"emergency", state.Emergency,
	)
	return restored
}

// pendingTotalLocked sums the cost held by outstanding reservations.
func (g *Governor) pendingTotalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, r := range g.reservations {
		total = total.Add(r.Cost)
	}
	return total
}

func (g *Governor) updateGaugesLocked() {
	if g.metrics == nil {
		return
	}
	perSource := make(map[string]float64)
	for name, v := range g.ledger.Snapshot() {
		perSource[name] = v.InexactFloat64()
	}
	total := g.ledger.Total()
	g.metrics.UpdateSpend(perSource, total.InexactFloat64(), budget.Percent(total, g.cfg.DailyCostLimit)/100)
	g.metrics.SetReservations(len(g.reservations))
}

func (g *Governor) recordDecision(source string, err error) {
	if g.metrics == nil {
		return
	}
	result := "allowed"
	if le, ok := err.(*LimitError); ok {
		result = le.Type
	} else if err != nil {
		result = "invalid"
	}
	g.metrics.RecordDecision(source, result)
}

func (g *Governor) emit(pending []alerts.Alert) {
	for _, a := range pending {
		if err := g.sink.Send(context.Background(), a); err != nil {
			g.logger.Error("failed to send alert", "type", a.Type, "error", err)
		}
	}
}
