package limits

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/limits/ratelimit"
)

// defaultRPM applies to sources missing from the built-in table.
const defaultRPM = 60

// builtinLimits are the stock limits of the collector's known APIs
// (requests per minute, daily cap in USD).
var builtinLimits = map[string]struct {
	rpm int
	cap string
}{
	"binance":     {1200, "0"},
	"coingecko":   {50, "0"},
	"santiment":   {10, "1.00"},
	"whale_alert": {60, "5.00"},
	"coinbase":    {600, "0"},
	"fear_greed":  {60, "0"},
}

// Config contains configuration for the governor.
type Config struct {
	// Sources are the governed APIs.
	Sources []Source

	// DailyCostLimit is the global daily cap across all sources.
	DailyCostLimit decimal.Decimal

	// WindowMode selects the RPM counting strategy.
	WindowMode ratelimit.Mode

	// HighCostThreshold raises a HIGH_COST alert for calls costing more.
	HighCostThreshold decimal.Decimal

	// WarnThreshold is the fraction of DailyCostLimit above which every
	// recorded outcome logs a warning.
	WarnThreshold float64

	// Retention is how long PruneOld keeps window data and history.
	Retention time.Duration

	// HistorySize bounds the per-source request history.
	HistorySize int

	// ReservationTTL is how long an unsettled reservation holds its slot.
	ReservationTTL time.Duration
}

// NewConfig derives the governor configuration from the application config.
//
// Every source in the built-in table is governed unless the data source
// catalogue lists it as disabled. Enabled catalogue entries outside the table
// are governed with a 60 RPM default. For each enabled paid API with a
// positive price the cap and RPM are derived from the price:
//
//	maxCalls = min(max_daily_calls, floor(per_source_ceiling / cost))
//	cap      = maxCalls * cost
//	rpm      = max(1, min(rpm, maxCalls / 24))
//
// governor.sources overrides win over both.
func NewConfig(cfg *config.Config) (Config, error) {
	mode, err := ratelimit.ParseMode(cfg.Governor.WindowMode)
	if err != nil {
		return Config{}, err
	}

	sources := make(map[string]*Source)

	for name, l := range builtinLimits {
		sources[name] = &Source{
			Name:           name,
			RPM:            l.rpm,
			DailyCostLimit: decimal.RequireFromString(l.cap),
		}
	}

	catalogue := []struct {
		apis map[string]config.APIConfig
		paid bool
	}{
		{cfg.DataSources.FreeAPIs, false},
		{cfg.DataSources.PaidAPIs, true},
	}
	for _, group := range catalogue {
		for name, api := range group.apis {
			if !api.Enabled {
				delete(sources, name)
				continue
			}
			src, ok := sources[name]
			if !ok {
				src = &Source{Name: name, RPM: defaultRPM, DailyCostLimit: decimal.Zero}
				sources[name] = src
			}
			src.Paid = group.paid
			src.Priority = api.Priority
			src.CostPerCall = decimal.NewFromFloat(api.CostPerCall)

			if group.paid && api.CostPerCall > 0 {
				deriveFromPrice(src, cfg.Governor.PerSourceCeiling, cfg.Governor.MaxDailyCalls)
			}
		}
	}

	for name, o := range cfg.Governor.Sources {
		src, ok := sources[name]
		if !ok {
			src = &Source{Name: name, RPM: defaultRPM, DailyCostLimit: decimal.Zero}
			sources[name] = src
		}
		if o.RPM > 0 {
			src.RPM = o.RPM
		}
		if o.DailyCostLimit > 0 {
			src.DailyCostLimit = decimal.NewFromFloat(o.DailyCostLimit)
		}
	}

	out := Config{
		DailyCostLimit:    decimal.NewFromFloat(cfg.DailyCostLimit),
		WindowMode:        mode,
		HighCostThreshold: decimal.NewFromFloat(cfg.Governor.HighCostThreshold),
		WarnThreshold:     cfg.Governor.WarnThreshold,
		Retention:         cfg.Governor.Retention,
		HistorySize:       cfg.Governor.HistorySize,
		ReservationTTL:    cfg.Governor.ReservationTTL,
	}
	for _, src := range sources {
		if src.RPM <= 0 {
			return Config{}, fmt.Errorf("source %s: rpm must be positive", src.Name)
		}
		out.Sources = append(out.Sources, *src)
	}
	sort.Slice(out.Sources, func(i, j int) bool { return out.Sources[i].Name < out.Sources[j].Name })

	return out, nil
}

func deriveFromPrice(src *Source, ceiling float64, maxDaily int) {
	cost := src.CostPerCall
	maxCalls := int64(maxDaily)
	if byCeiling := decimal.NewFromFloat(ceiling).Div(cost).Floor().IntPart(); byCeiling < maxCalls {
		maxCalls = byCeiling
	}
	if maxCalls < 0 {
		maxCalls = 0
	}

	src.DailyCostLimit = cost.Mul(decimal.NewFromInt(maxCalls))

	rpm := int(maxCalls / 24)
	if src.RPM < rpm {
		rpm = src.RPM
	}
	if rpm < 1 {
		rpm = 1
	}
	src.RPM = rpm
}
