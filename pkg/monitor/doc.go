// Package monitor implements the usage monitor.
//
// Each cycle reads a governor Status and raises alerts that are deduplicated
// by key: HIGH_USAGE once per day ("high_usage:2026-03-14") and API_CRITICAL
// once per source per minute ("santiment:critical:2026-03-14T12:05"). Keys are
// forgotten after 48 hours. When usage reaches the emergency threshold the
// monitor engages the governor's kill switch and raises EMERGENCY_STOP.
//
// The monitor is driven by a scheduler.Loop:
//
//	mon := monitor.New(gov, monitor.NewConfig(cfg), sink, logger)
//	loop := scheduler.NewLoop(scheduler.LoopConfig{Name: "monitor", Interval: 5 * time.Minute}, mon.CheckAndAlert)
//	go loop.Run(ctx)
package monitor
