package wallet

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// MemoryRepository keeps wallets in process memory for dev mode and tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]Wallet
	byCustomer map[string]string
}

// NewMemoryRepository creates an empty in-memory wallet repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:       make(map[string]Wallet),
		byCustomer: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(_ context.Context, w Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[w.ID]; exists {
		return fmt.Errorf("wallet %s already exists", w.ID)
	}
	if _, exists := r.byCustomer[w.CustomerID]; exists {
		return fmt.Errorf("customer %s already has a wallet", w.CustomerID)
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
	r.byID[w.ID] = w
	r.byCustomer[w.CustomerID] = w.ID
	return nil
}

func (r *MemoryRepository) GetByCustomer(_ context.Context, customerID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCustomer[customerID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) Increment(_ context.Context, walletID string, delta int64) (int64, error) {
	return r.adjust(walletID, delta)
}

func (r *MemoryRepository) Decrement(_ context.Context, walletID string, delta int64) (int64, error) {
	return r.adjust(walletID, -delta)
}

func (r *MemoryRepository) adjust(walletID string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[walletID]
	if !ok {
		return 0, ErrNotFound
	}
	w.BalanceCents += delta
	w.UpdatedAt = time.Now().UTC()
	r.byID[walletID] = w
	return w.BalanceCents, nil
}

// Snapshot captures the current state and returns a func restoring it.
func (r *MemoryRepository) Snapshot() (restore func()) {
	r.mu.RLock()
	byID := maps.Clone(r.byID)
	byCustomer := maps.Clone(r.byCustomer)
	r.mu.RUnlock()
	return func() {
		r.mu.Lock()
		r.byID = byID
		r.byCustomer = byCustomer
		r.mu.Unlock()
	}
}
