package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/cli"
	"agentceli/warden/pkg/limits"
)

var emergencyFlags struct {
	reason string
}

var emergencyCmd = &cobra.Command{
	Use:   "emergency",
	Short: "Engage or release the kill switch",
	Long: `While the kill switch is engaged every governor check fails, so the
collector makes no upstream calls. It stays engaged across daily resets and
daemon restarts until it is resumed.`,
}

var emergencyStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Reject every call until resumed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"reason": emergencyFlags.reason}
		return governorAction(cmd, "emergency stop", "/v1/emergency/stop", body)
	},
}

var emergencyResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Release the kill switch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return governorAction(cmd, "emergency resume", "/v1/emergency/resume", nil)
	},
}

var resetDailyCmd = &cobra.Command{
	Use:   "reset-daily",
	Short: "Start a new spend day now",
	Long: `Clear today's per-source spend and call counts. The kill switch is not
touched. The scheduled reset does the same at midnight.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return governorAction(cmd, "reset-daily", "/v1/ledger/reset", nil)
	},
}

var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Allow restarts after a watchdog shutdown",
	Long: `After a sustained dataset shortfall the watchdog stops the collector and
blocks the supervisor from restarting it. Release clears that block once the
cause has been dealt with.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		var resp struct {
			Released bool `json:"released"`
		}
		if err := client.Post(cmd.Context(), "/v1/collector/release", nil, &resp); err != nil {
			return cli.NewCommandError("release", err)
		}
		return printResult(cmd, resp, func(w io.Writer, _ any) error {
			msg := "Collector was not halted; nothing to release."
			if resp.Released {
				msg = "✓ Collector released; the supervisor may restart it."
			}
			_, err := fmt.Fprintln(w, msg)
			return err
		})
	},
}

func init() {
	emergencyStopCmd.Flags().StringVar(&emergencyFlags.reason, "reason", "", "reason recorded with the stop")
	emergencyCmd.AddCommand(emergencyStopCmd, emergencyResumeCmd)
	rootCmd.AddCommand(emergencyCmd, resetDailyCmd, releaseCmd)
}

// governorAction posts to an endpoint that answers with the governor status.
func governorAction(cmd *cobra.Command, name, path string, body any) error {
	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	var st limits.Status
	if err := client.Post(cmd.Context(), path, body, &st); err != nil {
		return cli.NewCommandError(name, err)
	}
	return printResult(cmd, st, renderGovernorSummary)
}

func renderGovernorSummary(w io.Writer, data any) error {
	st := data.(limits.Status)
	state := "off"
	if st.Emergency {
		state = "ENGAGED (" + st.EmergencyReason + ")"
	}
	_, err := fmt.Fprintf(w, "Day %s: $%s of $%s spent, emergency stop %s\n",
		st.Day, st.TotalDailyCost.StringFixed(2), st.DailyLimit.StringFixed(2), state)
	return err
}
