package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/cli"
	"agentceli/warden/pkg/config"
	"agentceli/warden/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the warden daemon",
	Long: `Start the cost governor, the usage monitor, the process supervisor, the
dataset watchdog and the control API.

The ledger is restored from the last snapshot on start and saved on shutdown,
so a restart within the same day keeps the day's spend and the kill switch.

Examples:
  # Start with default config
  warden run

  # Start with custom config
  warden run --config /etc/warden/config.yaml

  # Override listen address
  warden run --listen 0.0.0.0:9090

  # Validate config without starting
  warden run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	logs, err := newLogger(cfg)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer logs.Close()

	logger := logs.Slog()
	slog.SetDefault(logger)

	logger.Info("starting warden",
		"version", Version,
		"config", cfgFile,
		"listen_address", cfg.Server.ListenAddress,
		"daily_cost_limit", cfg.DailyCostLimit,
		"storage_backend", cfg.Governor.Storage.Backend,
		"tracing", cfg.Telemetry.Tracing.Enabled,
		"auth", cfg.Server.Auth.Enabled(),
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close()

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	if err := a.Run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("warden stopped")
	return nil
}

// newLogger builds the process logger. API keys and control API tokens are
// masked unless redaction is disabled.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := cfg.Telemetry.Logging

	var secrets []string
	if config.IsEnabled(lc.RedactKeys, config.DefaultRedactKeys) {
		secrets = cfg.Secrets()
	}

	return logging.New(logging.Config{
		Level:      lc.Level,
		Format:     lc.Format,
		AddSource:  lc.AddSource,
		Secrets:    secrets,
		JournalDir: lc.JournalDir,
	})
}
