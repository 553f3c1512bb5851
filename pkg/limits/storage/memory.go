package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements Backend using in-memory storage.
// It provides no persistence and is used in tests and when the operator
// opts out of the database. All data is lost when the process exits.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryBackend struct {
	// states maps day to ledger state.
	states map[string]*LedgerState

	mu sync.RWMutex
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		states: make(map[string]*LedgerState),
	}
}

// Save persists a copy of state.
func (m *MemoryBackend) Save(ctx context.Context, state *LedgerState) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if state.Day == "" {
		return fmt.Errorf("day cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := state.clone()
	now := time.Now()
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if existing, ok := m.states[c.Day]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	m.states[c.Day] = c

	return nil
}

// Load retrieves the state for day.
func (m *MemoryBackend) Load(ctx context.Context, day string) (*LedgerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[day]
	if !ok {
		return nil, nil
	}
	return state.clone(), nil
}

// Latest returns the most recently updated state.
func (m *MemoryBackend) Latest(ctx context.Context) (*LedgerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *LedgerState
	for _, s := range m.states {
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.clone(), nil
}

// List returns all states, newest day first.
func (m *MemoryBackend) List(ctx context.Context) ([]*LedgerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*LedgerState, 0, len(m.states))
	for _, s := range m.states {
		states = append(states, s.clone())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Day > states[j].Day })
	return states, nil
}

// Cleanup removes states last updated before olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for day, s := range m.states {
		if s.UpdatedAt.Before(olderThan) {
			delete(m.states, day)
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}
