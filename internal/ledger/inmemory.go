package ledger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is a concurrency-safe in-memory ledger for dev mode and tests.
type MemoryRepository struct {
	mu       sync.RWMutex
	entries  []Entry
	byWallet map[string][]int
	byKey    map[string]int
}

// NewMemoryRepository creates an empty ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byWallet: make(map[string][]int),
		byKey:    make(map[string]int),
	}
}

func (r *MemoryRepository) Append(_ context.Context, e Entry) (Entry, error) {
	e = withDefaults(e)
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e.IdempotencyKey != "" {
		if idx, exists := r.byKey[walletKey(e.WalletID, e.IdempotencyKey)]; exists {
			existing := r.entries[idx]
			if !existing.Matches(e) {
				return existing, ErrIdempotencyConflict
			}
			return existing, ErrDuplicateEntry
		}
	}
	r.insertLocked(e)
	return e, nil
}

func (r *MemoryRepository) AppendMany(_ context.Context, entries []Entry) error {
	prepared := make([]Entry, 0, len(entries))
	for _, e := range entries {
		e = withDefaults(e)
		if err := e.Validate(); err != nil {
			return err
		}
		prepared = append(prepared, e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(prepared))
	for _, e := range prepared {
		if e.IdempotencyKey == "" {
			continue
		}
		k := walletKey(e.WalletID, e.IdempotencyKey)
		if _, exists := r.byKey[k]; exists {
			return fmt.Errorf("insert ledger entries: key %s already used", e.IdempotencyKey)
		}
		if _, exists := seen[k]; exists {
			return fmt.Errorf("insert ledger entries: key %s repeated in batch", e.IdempotencyKey)
		}
		seen[k] = struct{}{}
	}
	for _, e := range prepared {
		r.insertLocked(e)
	}
	return nil
}

func (r *MemoryRepository) FindByIdempotencyKey(_ context.Context, walletID, key string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byKey[walletKey(walletID, key)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return r.entries[idx], nil
}

func (r *MemoryRepository) ExistingKeys(_ context.Context, walletID string, source SourceType, keys []string) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{})
	for _, key := range keys {
		idx, ok := r.byKey[walletKey(walletID, key)]
		if ok && r.entries[idx].SourceType == source {
			out[key] = struct{}{}
		}
	}
	return out, nil
}

func (r *MemoryRepository) Sum(_ context.Context, walletID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sum int64
	for _, idx := range r.byWallet[walletID] {
		sum += r.entries[idx].AmountCents
	}
	return sum, nil
}

func (r *MemoryRepository) ListByWallet(_ context.Context, walletID string, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	indexes := r.byWallet[walletID]
	out := make([]Entry, 0, min(limit, len(indexes)))
	for i := len(indexes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[indexes[i]])
	}
	return out, nil
}

// Snapshot captures the current state and returns a func restoring it.
func (r *MemoryRepository) Snapshot() (restore func()) {
	r.mu.RLock()
	entries := slices.Clone(r.entries)
	byWallet := make(map[string][]int, len(r.byWallet))
	for k, v := range r.byWallet {
		byWallet[k] = slices.Clone(v)
	}
	byKey := maps.Clone(r.byKey)
	r.mu.RUnlock()
	return func() {
		r.mu.Lock()
		r.entries = entries
		r.byWallet = byWallet
		r.byKey = byKey
		r.mu.Unlock()
	}
}

func (r *MemoryRepository) insertLocked(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	r.entries = append(r.entries, e)
	idx := len(r.entries) - 1
	r.byWallet[e.WalletID] = append(r.byWallet[e.WalletID], idx)
	if e.IdempotencyKey != "" {
		r.byKey[walletKey(e.WalletID, e.IdempotencyKey)] = idx
	}
}

func walletKey(walletID, key string) string {
	return walletID + "|" + key
}
