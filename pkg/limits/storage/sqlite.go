package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend using SQLite for persistence.
// It is suitable for the single-instance daemon: one row per ledger day,
// with spend stored as decimal strings so no precision is lost.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent performance
// and automatic checkpointing to balance write performance with durability.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	// preparedStatements contains pre-compiled SQL statements for performance
	saveStmt    *sql.Stmt
	loadStmt    *sql.Stmt
	latestStmt  *sql.Stmt
	listStmt    *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.DBPath, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger_days (
		day TEXT PRIMARY KEY,
		costs TEXT NOT NULL,
		requests TEXT NOT NULL,
		emergency INTEGER NOT NULL DEFAULT 0,
		emergency_reason TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_updated_at ON ledger_days(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.saveStmt, err = s.db.Prepare(`
		INSERT INTO ledger_days (day, costs, requests, emergency, emergency_reason, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (day) DO UPDATE SET
			costs = excluded.costs,
			requests = excluded.requests,
			emergency = excluded.emergency,
			emergency_reason = excluded.emergency_reason,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare save statement: %w", err)
	}

	const columns = `day, costs, requests, emergency, emergency_reason, updated_at, created_at`

	s.loadStmt, err = s.db.Prepare(`SELECT ` + columns + ` FROM ledger_days WHERE day = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare load statement: %w", err)
	}

	s.latestStmt, err = s.db.Prepare(`SELECT ` + columns + ` FROM ledger_days ORDER BY updated_at DESC, day DESC LIMIT 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare latest statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`SELECT ` + columns + ` FROM ledger_days ORDER BY day DESC`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`DELETE FROM ledger_days WHERE updated_at < ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Save persists the ledger state for state.Day.
func (s *SQLiteBackend) Save(ctx context.Context, state *LedgerState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if state.Day == "" {
		return fmt.Errorf("day cannot be empty")
	}

	costs := state.Costs
	if costs == nil {
		costs = map[string]decimal.Decimal{}
	}
	costsJSON, err := json.Marshal(costs)
	if err != nil {
		return fmt.Errorf("failed to marshal costs: %w", err)
	}

	requests := state.Requests
	if requests == nil {
		requests = map[string]int{}
	}
	requestsJSON, err := json.Marshal(requests)
	if err != nil {
		return fmt.Errorf("failed to marshal requests: %w", err)
	}

	now := time.Now()
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.saveStmt.ExecContext(ctx,
		state.Day,
		string(costsJSON),
		string(requestsJSON),
		boolToInt(state.Emergency),
		state.EmergencyReason,
		updatedAt.UnixMilli(),
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	return nil
}

// Load retrieves the ledger state for day.
func (s *SQLiteBackend) Load(ctx context.Context, day string) (*LedgerState, error) {
	if day == "" {
		return nil, fmt.Errorf("day cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := scanState(s.loadStmt.QueryRowContext(ctx, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return state, nil
}

// Latest returns the most recently updated state.
func (s *SQLiteBackend) Latest(ctx context.Context) (*LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, err := scanState(s.latestStmt.QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest state: %w", err)
	}
	return state, nil
}

// List returns all states, newest day first.
func (s *SQLiteBackend) List(ctx context.Context) ([]*LedgerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var states []*LedgerState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return states, nil
}

// Cleanup removes states last updated before olderThan.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.saveStmt, s.loadStmt, s.latestStmt, s.listStmt, s.cleanupStmt} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*LedgerState, error) {
	var (
		state        LedgerState
		costsJSON    string
		requestsJSON string
		emergency    int
		updatedAt    int64
		createdAt    int64
	)

	if err := row.Scan(&state.Day, &costsJSON, &requestsJSON, &emergency, &state.EmergencyReason, &updatedAt, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(costsJSON), &state.Costs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal costs: %w", err)
	}
	if err := json.Unmarshal([]byte(requestsJSON), &state.Requests); err != nil {
		return nil, fmt.Errorf("failed to unmarshal requests: %w", err)
	}

	state.Emergency = emergency != 0
	state.UpdatedAt = time.UnixMilli(updatedAt)
	state.CreatedAt = time.UnixMilli(createdAt)

	return &state, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
