// Package logging builds the slog handler chain shared by every Warden component.
//
// # Overview
//
// New returns a Logger whose handler:
//   - masks configured data-source credentials and bearer tokens
//   - writes JSON or text records to stdout (or a configured writer)
//   - mirrors each record into a per-component journal file
//
// Components receive *slog.Logger and tag themselves with a "component"
// attribute; the journal uses that attribute to pick the file.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:      "info",
//	    Format:     "json",
//	    Secrets:    cfg.APIKeys(),
//	    JournalDir: "logs",
//	})
//	defer logger.Close()
//
//	log := logger.Slog().With("component", "watchdog")
//	log.Warn("dataset stale", "name", "hybrid", "age", 41*time.Minute)
//
// # Journals
//
// Journal lines are plain text and greppable:
//
//	[2026-03-14 09:30:00] WATCHDOG: WARNING dataset stale age=41m0s name=hybrid
//
// # Levels
//
// LevelCritical is one step above error. Emergency stops, watchdog shutdowns
// and failed restarts use it; JSON output renders it as "CRITICAL".
package logging
