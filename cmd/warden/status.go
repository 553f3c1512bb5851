package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/cli"
	"agentceli/warden/pkg/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running warden",
	Long: `Show today's spend per source, the kill switch, the supervisor's view of the
collector and the dataset watchdog state.

Examples:
  warden status
  warden status --addr 10.0.0.5:9090 -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var st server.StatusResponse
		if err := client.Get(cmd.Context(), "/v1/status", &st); err != nil {
			return cli.NewCommandError("status", err)
		}
		return printResult(cmd, st, renderStatus)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func renderStatus(w io.Writer, data any) error {
	st := data.(server.StatusResponse)
	gov := st.Governor

	fmt.Fprintf(w, "Day:        %s\n", gov.Day)
	fmt.Fprintf(w, "Spend:      $%s of $%s %s\n",
		gov.TotalDailyCost.StringFixed(2), gov.DailyLimit.StringFixed(2), cli.Bar(gov.UsagePercent, 20))
	if gov.Emergency {
		fmt.Fprintf(w, "Emergency:  ENGAGED (%s)\n", gov.EmergencyReason)
	} else {
		fmt.Fprintln(w, "Emergency:  off")
	}
	if gov.Reservations > 0 {
		fmt.Fprintf(w, "Pending:    %d reservation(s)\n", gov.Reservations)
	}

	names := make([]string, 0, len(gov.Sources))
	for name := range gov.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRPM\tCOST\tCALLS\tSUCCESS\tSTATUS")
	for _, name := range names {
		s := gov.Sources[name]
		cost := "$" + s.DailyCost.StringFixed(2)
		if s.DailyCostLimit.IsPositive() {
			cost += "/$" + s.DailyCostLimit.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%d\t%.0f%%\t%s\n",
			name, s.RequestsInWindow, s.RPMLimit, cost, s.RequestsToday, s.SuccessRate, s.Health)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if sup := st.Supervisor; sup != nil {
		fmt.Fprintf(w, "\nCollector:  %s, %d restart(s)", sup.State, sup.RestartCount)
		if sup.LastRestart != nil {
			fmt.Fprintf(w, ", last %s ago", since(st.Timestamp, *sup.LastRestart))
		}
		fmt.Fprintln(w)
		if sup.LastRestartErr != "" {
			fmt.Fprintf(w, "            last restart failed: %s\n", sup.LastRestartErr)
		}
	}

	if wd := st.Watchdog; wd != nil {
		fmt.Fprintf(w, "Datasets:   %s, %d/%d valid", wd.State, wd.ValidDatasets, wd.MinDatasets)
		if wd.LowDataSince != nil {
			fmt.Fprintf(w, ", low for %s", since(st.Timestamp, *wd.LowDataSince))
		}
		if wd.Halted {
			fmt.Fprint(w, ", HALTED (warden release to resume restarts)")
		}
		fmt.Fprintln(w)
	}
	return nil
}

func since(now, t time.Time) time.Duration {
	return now.Sub(t).Round(time.Second)
}
