// Package scheduler drives Warden's periodic work.
//
// Two mechanisms live here. Loop runs a health loop (monitor, supervisor,
// watchdog) on a fixed interval with error backoff and panic recovery.
// Scheduler runs the governor's housekeeping on cron expressions using
// robfig/cron: the midnight ledger reset, pruning of old window data,
// snapshot persistence and snapshot cleanup.
//
// # Cron Expressions
//
// Standard five-field expressions and descriptors are accepted:
//
//	"0 0 * * *"     - daily at midnight (local time)
//	"@every 30s"    - every 30 seconds
//	"0 4 * * *"     - daily at 4 AM
//
// The governor never resets itself. If the daemon was down at midnight,
// Scheduler.Restore notices the snapshot belongs to an earlier day and starts
// the new day with an empty ledger.
package scheduler
