package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/process"
	"agentceli/warden/pkg/supervisor"
	"agentceli/warden/pkg/telemetry/health"
	"agentceli/warden/pkg/watchdog"
)

// errUnhealthy makes a failed offline check exit non-zero after its report.
var errUnhealthy = errors.New("check failed")

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "Check the collector's datasets",
	Long: `Check every configured dataset for existence, freshness and content without
a running daemon. Exits non-zero when fewer than watchdog.min_datasets are
valid.`,
	Args: cobra.NoArgs,
	RunE: runDatasets,
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Run the supervisor's health check once",
	Long: `Check the collector's output artifact, its HTTP endpoint and its process
without a running daemon. Nothing is restarted. Exits non-zero unless the
collector is healthy.`,
	Args: cobra.NoArgs,
	RunE: runHealthcheck,
}

func init() {
	rootCmd.AddCommand(datasetsCmd, healthcheckCmd)
}

// datasetReport is the output of the datasets command.
type datasetReport struct {
	Valid       int               `json:"valid_datasets"`
	MinDatasets int               `json:"min_datasets"`
	Datasets    []watchdog.Result `json:"datasets"`
}

func runDatasets(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report := datasetReport{MinDatasets: cfg.Watchdog.MinDatasets}
	now := time.Now()
	for _, d := range watchdog.NewDescriptors(cfg.Watchdog.Datasets) {
		r := watchdog.CheckDataset(d, now)
		if r.Valid {
			report.Valid++
		}
		report.Datasets = append(report.Datasets, r)
	}

	if err := printResult(cmd, report, renderDatasets); err != nil {
		return err
	}
	if report.Valid < report.MinDatasets {
		return fmt.Errorf("%w: %d of %d required datasets valid", errUnhealthy, report.Valid, report.MinDatasets)
	}
	return nil
}

func renderDatasets(w io.Writer, data any) error {
	report := data.(datasetReport)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tSTATUS\tAGE\tDETAIL")
	for _, r := range report.Datasets {
		age := "-"
		if r.Age >= 0 {
			age = r.Age.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Reason, age, r.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d/%d valid (minimum %d)\n", report.Valid, len(report.Datasets), report.MinDatasets)
	return err
}

// healthReport is the output of the healthcheck command.
type healthReport struct {
	State  supervisor.State `json:"state"`
	Report health.Report    `json:"report"`
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	registry := process.NewSystemRegistry(process.CmdlineMatcher{
		Require: cfg.Supervisor.Process.Require,
		Exclude: cfg.Supervisor.Process.Exclude,
	})
	sup := supervisor.New(supervisor.NewConfig(cfg.Supervisor), registry, nil, supervisor.Options{
		Logger: commandLogger(),
	})

	state, report := sup.HealthCheck(cmd.Context())
	if err := printResult(cmd, healthReport{State: state, Report: report}, renderHealth); err != nil {
		return err
	}
	if state != supervisor.StateHealthy {
		return fmt.Errorf("%w: collector is %s", errUnhealthy, state)
	}
	return nil
}

func renderHealth(w io.Writer, data any) error {
	hr := data.(healthReport)

	names := make([]string, 0, len(hr.Report.Checks))
	for name := range hr.Report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Collector: %s\n", hr.State)
	for _, name := range names {
		c := hr.Report.Checks[name]
		mark := "✓"
		if !c.Healthy() {
			mark = "✗"
		}
		line := fmt.Sprintf("  %s %-9s %6.1fms", mark, name, c.DurationMS)
		if c.Message != "" {
			line += "  " + c.Message
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// commandLogger is the logger of offline commands: silent unless --verbose.
func commandLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
