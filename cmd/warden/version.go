package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"agentceli/warden/pkg/telemetry/health"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "0.1.0"
	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"
	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print detailed version information including Git commit and build date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResult(cmd, versionInfo(), renderVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionInfo() health.VersionInfo {
	return health.NewVersionInfo(Version, GitCommit, BuildDate)
}

func renderVersion(w io.Writer, data any) error {
	info := data.(health.VersionInfo)
	_, err := fmt.Fprintf(w, "Warden %s\nGit Commit: %s\nBuild Date: %s\nGo Version: %s\nOS/Arch: %s/%s\n",
		info.Version, info.Commit, info.BuildTime, info.GoVersion, runtime.GOOS, runtime.GOARCH)
	return err
}
