// Package process finds, stops and starts the collector's processes.
//
// A Registry lists the processes that belong to the collector. The
// SystemRegistry reads the host process table through gopsutil and keeps the
// ones a Matcher accepts, never including warden itself. CmdlineMatcher
// matches on command line substrings:
//
//	reg := process.NewSystemRegistry(process.CmdlineMatcher{
//	    Require: []string{"agentceli", "python"},
//	    Exclude: []string{"watchdog"},
//	})
//
// A Controller drives the collector's control command ("<cmd> stop",
// "<cmd> start") with per-action timeouts, and falls back to signalling
// processes directly: SIGTERM, a grace period, then SIGKILL for survivors.
// Spawn launches the entry point and confirms it survives its startup grace.
package process
