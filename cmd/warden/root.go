package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/cli"
	"agentceli/warden/pkg/config"
)

var (
	// Global flags
	cfgFile    string
	apiAddr    string
	apiToken   string
	outputFlag string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - budget and health control plane for the AgentCeli collector",
	Long: `Warden keeps the AgentCeli market data collector inside its API budget and
keeps it producing data.

It runs four cooperating components:
  - Cost governor: per-source rate limits and daily spend caps, with a kill switch
  - Usage monitor: threshold alerts and cost optimization recommendations
  - Process supervisor: restarts the collector when its output goes stale
  - Dataset watchdog: shuts the collector down after a sustained data shortfall

The collector talks to the governor through the control API started by
"warden run". The other commands are operator tools.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "", "control API address of a running warden (default: server.listen_address)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "control API bearer token (default: $"+tokenEnv+", then server.auth.token)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig loads the configuration file with environment overrides. The
// default config.yaml may be absent, in which case built-in defaults apply;
// an explicitly named file must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if cmd != nil && !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.LoadConfigWithEnvOverrides(path)
	if err != nil {
		if path == "" {
			path = "built-in defaults"
		}
		return nil, cli.WrapConfigError(path, err)
	}
	return cfg, nil
}

// tokenEnv holds the control API token for operator commands.
const tokenEnv = "WARDEN_TOKEN"

// newClient returns a control API client for --addr, falling back to the
// configured listen address. The token comes from --token, $WARDEN_TOKEN or
// the configured operator token, in that order.
func newClient(cmd *cobra.Command) (*cli.Client, error) {
	addr := apiAddr
	token := apiToken
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if addr == "" || token == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		if addr == "" {
			addr = cfg.Server.ListenAddress
		}
		if token == "" {
			token = cfg.Server.Auth.Token
		}
	}
	return cli.NewClient(addr, cli.DefaultTimeout).WithToken(token), nil
}

// printResult writes data in the --output format, using render for text.
func printResult(cmd *cobra.Command, data any, render func(w io.Writer, data any) error) error {
	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format, render).FormatTo(cmd.OutOrStdout(), data)
}
