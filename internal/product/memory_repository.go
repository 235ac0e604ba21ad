package product

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps products in process memory for dev mode and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Product
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]Product)}
}

func (r *MemoryRepository) Create(_ context.Context, p Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[p.ID]; exists {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	for _, existing := range r.items {
		if existing.Name == p.Name {
			return fmt.Errorf("product name %q already exists", p.Name)
		}
	}
	r.items[p.ID] = p
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0, len(r.items))
	for _, p := range r.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) UpdatePrice(_ context.Context, id string, unitPriceCents int64) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.UnitPriceCents = unitPriceCents
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return p, nil
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
