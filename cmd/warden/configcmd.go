package main

import (
	"fmt"
	"io"
	"maps"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agentceli/warden/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and environment overrides",
	Long: `Load the configuration the way "warden run" does, with defaults, .env and
WARDEN_* overrides applied, and report every invalid field at once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		summary := map[string]any{
			"valid":            true,
			"daily_cost_limit": cfg.DailyCostLimit,
			"free_apis":        len(cfg.DataSources.FreeAPIs),
			"paid_apis":        len(cfg.DataSources.PaidAPIs),
			"datasets":         len(cfg.Watchdog.Datasets),
			"auth":             cfg.Server.Auth.Enabled(),
			"tracing":          cfg.Telemetry.Tracing.Enabled,
		}
		return printResult(cmd, summary, func(w io.Writer, _ any) error {
			_, err := fmt.Fprintf(w, "✓ Configuration valid (%d free APIs, %d paid APIs, %d datasets, $%.2f daily limit)\n",
				summary["free_apis"], summary["paid_apis"], summary["datasets"], cfg.DailyCostLimit)
			return err
		})
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		masked := maskKeys(cfg)
		return printResult(cmd, masked, func(w io.Writer, data any) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(data); err != nil {
				return err
			}
			return enc.Close()
		})
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

// maskKeys returns a copy of cfg whose API keys and control API tokens are
// replaced by a marker.
func maskKeys(cfg *config.Config) *config.Config {
	out := *cfg
	mask := func(in map[string]config.APIConfig) map[string]config.APIConfig {
		if in == nil {
			return nil
		}
		m := maps.Clone(in)
		for name, api := range m {
			if api.Key != "" {
				api.Key = "***"
				m[name] = api
			}
		}
		return m
	}
	out.DataSources.FreeAPIs = mask(cfg.DataSources.FreeAPIs)
	out.DataSources.PaidAPIs = mask(cfg.DataSources.PaidAPIs)

	if out.Server.Auth.Token != "" {
		out.Server.Auth.Token = "***"
	}
	if len(cfg.Server.Auth.Tokens) > 0 {
		out.Server.Auth.Tokens = make([]config.TokenConfig, len(cfg.Server.Auth.Tokens))
		for i, t := range cfg.Server.Auth.Tokens {
			t.Token = "***"
			out.Server.Auth.Tokens[i] = t
		}
	}
	return &out
}
