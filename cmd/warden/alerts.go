package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/alerts"
	"agentceli/warden/pkg/cli"
)

var alertsFlags struct {
	limit int
}

// alertList is the body of GET /v1/alerts.
type alertList struct {
	Alerts []alerts.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent alerts",
	Long: `List the most recent alerts raised by the governor, the monitor, the
supervisor and the watchdog, oldest first.

Examples:
  warden alerts
  warden alerts --limit 10 -o json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		q := url.Values{"limit": {strconv.Itoa(alertsFlags.limit)}}
		var list alertList
		if err := client.Get(cmd.Context(), "/v1/alerts?"+q.Encode(), &list); err != nil {
			return cli.NewCommandError("alerts", err)
		}
		return printResult(cmd, list, renderAlerts)
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.Flags().IntVarP(&alertsFlags.limit, "limit", "n", 20, "number of alerts to show (0 for all)")
}

func renderAlerts(w io.Writer, data any) error {
	list := data.(alertList)
	if len(list.Alerts) == 0 {
		_, err := fmt.Fprintln(w, "No alerts.")
		return err
	}
	for _, a := range list.Alerts {
		line := fmt.Sprintf("%s  %-8s  %-14s  %s", a.Timestamp.Format("2006-01-02 15:04:05"), a.Severity, a.Type, a.Message)
		if a.Cost != nil {
			line += fmt.Sprintf(" ($%s)", a.Cost.StringFixed(4))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
