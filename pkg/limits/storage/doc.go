// Package storage provides persistence backends for the governor's daily ledger.
//
// # Overview
//
// The governor keeps its ledger in memory; a scheduled job saves a
// LedgerState snapshot so that a restart in the middle of the day does not
// forget money already spent. Two implementations exist:
//
//   - Memory: in-process map, no persistence
//   - SQLite: file-based persistence (modernc.org/sqlite, no cgo)
//
// # Usage
//
//	backend, err := storage.NewSQLiteBackend("data/warden.db")
//	err = backend.Save(ctx, governor.Snapshot())
//	state, err := backend.Latest(ctx)
//
// # Thread Safety
//
// All storage backends are thread-safe and support concurrent access
// from multiple goroutines. Locking is handled internally by each backend.
package storage
