package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store keeps the most recent alerts in memory and mirrors them to a JSON
// array file. Each Send rewrites the file through a temporary file and a
// rename so readers never observe a partial write.
type Store struct {
	path   string
	max    int
	alerts []Alert
	logger *slog.Logger

	mu sync.RWMutex
}

// NewStore opens the alert file at path, keeping at most max alerts.
// A missing file starts an empty store. An unreadable or corrupt file is
// logged and replaced on the next write.
func NewStore(path string, max int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if max <= 0 {
		max = 100
	}

	s := &Store{
		path:   path,
		max:    max,
		logger: logger.With("component", "alerts.store"),
	}

	if err := s.load(); err != nil {
		s.logger.Warn("discarding unreadable alert file", "path", path, "error", err)
	}

	return s
}

// Send appends alert and persists the bounded history.
func (s *Store) Send(ctx context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)
	if over := len(s.alerts) - s.max; over > 0 {
		s.alerts = append([]Alert(nil), s.alerts[over:]...)
	}

	if s.path == "" {
		return nil
	}
	return s.persistLocked()
}

// Recent returns up to n of the newest alerts, oldest first.
// n <= 0 returns everything held.
func (s *Store) Recent(n int) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n > 0 && n < len(s.alerts) {
		start = len(s.alerts) - n
	}
	out := make([]Alert, len(s.alerts)-start)
	copy(out, s.alerts[start:])
	return out
}

// Len returns the number of alerts held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var stored []Alert
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse alert file: %w", err)
	}

	if over := len(stored) - s.max; over > 0 {
		stored = stored[over:]
	}
	s.alerts = stored
	return nil
}

func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create alert directory: %w", err)
	}

	data, err := json.MarshalIndent(s.alerts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".alerts-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write alerts: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace alert file: %w", err)
	}

	return nil
}
