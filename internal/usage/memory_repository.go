package usage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryRepository keeps usage events in insertion order for dev mode and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	events []Event
	index  map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{index: make(map[string]int)}
}

func (r *MemoryRepository) Create(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.index[e.ID]; exists {
		return fmt.Errorf("usage event %s already exists", e.ID)
	}
	e.BilledAt = nil
	r.events = append(r.events, e)
	r.index[e.ID] = len(r.events) - 1
	return nil
}

func (r *MemoryRepository) PendingCustomerIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, e := range r.events {
		if !e.Pending() {
			continue
		}
		if _, ok := seen[e.CustomerID]; ok {
			continue
		}
		seen[e.CustomerID] = struct{}{}
		out = append(out, e.CustomerID)
	}
	return out, nil
}

func (r *MemoryRepository) ListPending(_ context.Context, customerID string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.CustomerID == customerID && e.Pending() {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b Event) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) MarkBilled(_ context.Context, ids []string, billedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, id := range ids {
		idx, ok := r.index[id]
		if !ok || !r.events[idx].Pending() {
			continue
		}
		at := billedAt.UTC()
		r.events[idx].BilledAt = &at
		updated++
	}
	return updated, nil
}

func (r *MemoryRepository) ListByCustomer(_ context.Context, customerID string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].CustomerID == customerID {
			out = append(out, r.events[i])
		}
	}
	slices.SortStableFunc(out, func(a, b Event) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// Snapshot captures the current state and returns a func restoring it.
func (r *MemoryRepository) Snapshot() (restore func()) {
	r.mu.RLock()
	events := slices.Clone(r.events)
	index := make(map[string]int, len(r.index))
	for k, v := range r.index {
		index[k] = v
	}
	r.mu.RUnlock()
	return func() {
		r.mu.Lock()
		r.events = events
		r.index = index
		r.mu.Unlock()
	}
}
