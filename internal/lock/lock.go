// Package lock provides the named leader lock that keeps the billing sweep on
// a single instance. Holding is existence of a row; there is no lease expiry.
package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Locker acquires and releases named locks.
type Locker interface {
	// TryAcquire returns false without error when another owner holds name.
	TryAcquire(ctx context.Context, name, owner string) (bool, error)
	// Release drops name if it is held by owner.
	Release(ctx context.Context, name, owner string) error
}

// DefaultOwner identifies the current process as "<hostname>:pid:<pid>".
func DefaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s:pid:%d", host, os.Getpid())
}

// Memory is a process-local Locker for dev mode and tests.
type Memory struct {
	mu    sync.Mutex
	locks map[string]string
}

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]string)}
}

func (m *Memory) TryAcquire(_ context.Context, name, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[name]; held {
		return false, nil
	}
	m.locks[name] = owner
	return true, nil
}

func (m *Memory) Release(_ context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[name] == owner {
		delete(m.locks, name)
	}
	return nil
}

// Holder returns the current owner of name, if any.
func (m *Memory) Holder(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.locks[name]
	return owner, ok
}
