package monitor

import (
	"fmt"
	"sort"
	"strings"
)

// Recommendation is a read-only suggestion for lowering API usage.
type Recommendation struct {
	// Source is the affected source, empty for global advice.
	Source string `json:"source,omitempty"`

	// Kind is a stable identifier: increase_intervals, reduce_frequency, add_delays.
	Kind string `json:"kind"`

	// Message is the suggestion in words.
	Message string `json:"message"`
}

// Recommendation kinds.
const (
	KindIncreaseIntervals = "increase_intervals"
	KindReduceFrequency   = "reduce_frequency"
	KindAddDelays         = "add_delays"
)

// sourceAdviceThreshold is the per-source usage percent above which advice is given.
const sourceAdviceThreshold = 80.0

// Recommendations returns suggestions derived from the current governor
// status. It never changes any state.
func (m *Monitor) Recommendations() []Recommendation {
	status := m.gov.Status()
	var recs []Recommendation

	if status.Usage() > m.cfg.RecommendThreshold {
		recs = append(recs, Recommendation{
			Kind:    KindIncreaseIntervals,
			Message: "Increase update intervals in config" + m.doubledIntervals(),
		})
	}

	for _, name := range sortedSources(status) {
		src := status.Sources[name]
		if src.CostUsagePercent > sourceAdviceThreshold {
			recs = append(recs, Recommendation{
				Source:  name,
				Kind:    KindReduceFrequency,
				Message: fmt.Sprintf("Reduce %s call frequency", name),
			})
		}
		if src.RPMUsagePercent > sourceAdviceThreshold {
			recs = append(recs, Recommendation{
				Source:  name,
				Kind:    KindAddDelays,
				Message: fmt.Sprintf("Add delays between %s requests", name),
			})
		}
	}

	return recs
}

// doubledIntervals renders the configured update intervals with doubled
// values, e.g. " (fast_data: 60s -> 120s, slow_data: 300s -> 600s)".
func (m *Monitor) doubledIntervals() string {
	if len(m.cfg.UpdateIntervals) == 0 {
		return ""
	}
	names := make([]string, 0, len(m.cfg.UpdateIntervals))
	for name := range m.cfg.UpdateIntervals {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		v := m.cfg.UpdateIntervals[name]
		parts = append(parts, fmt.Sprintf("%s: %ds -> %ds", name, v, v*2))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
