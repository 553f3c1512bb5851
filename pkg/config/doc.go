// Package config provides configuration management for Warden.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overlaid with environment variables and then validated. All validation
// failures are collected into a single ValidationError.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// An empty path loads the built-in defaults, which describe the stock
// AgentCeli deployment (six data sources, three datasets, a 10 USD daily limit).
//
// # Environment Variable Overrides
//
// Variables follow the naming convention WARDEN_SECTION_FIELD and are also
// read from a .env file in the working directory:
//
//   - WARDEN_DAILY_COST_LIMIT overrides daily_cost_limit
//   - WARDEN_GOVERNOR_WINDOW_MODE overrides governor.window_mode
//   - WARDEN_SUPERVISOR_CONTROL_COMMAND overrides supervisor.control.command (comma separated)
//   - WARDEN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//   - WARDEN_TELEMETRY_TRACING_ENABLED overrides telemetry.tracing.enabled
//   - WARDEN_SERVER_AUTH_TOKEN sets the operator token of the control API
//
// Maps and lists (data_sources, update_intervals, governor.sources,
// watchdog.datasets, server.auth.tokens) can only be set in the file.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
package config
