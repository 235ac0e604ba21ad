package customer

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// MemoryRepository keeps customers in process memory for dev mode and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Customer
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Customer)}
}

func (r *MemoryRepository) Create(_ context.Context, c Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[c.ID]; exists {
		return fmt.Errorf("customer %s already exists", c.ID)
	}
	r.items[c.ID] = c
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return Customer{}, ErrNotFound
	}
	return c, nil
}

// Snapshot captures the current state and returns a func restoring it.
func (r *MemoryRepository) Snapshot() (restore func()) {
	r.mu.RLock()
	saved := maps.Clone(r.items)
	r.mu.RUnlock()
	return func() {
		r.mu.Lock()
		r.items = saved
		r.mu.Unlock()
	}
}
