package wallet

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a customer has no wallet.
var ErrNotFound = errors.New("wallet not found")

// Wallet caches the balance of a customer. BalanceCents always equals the sum
// of the wallet's ledger entries once a transaction commits, so it may only
// be changed by Increment or Decrement in the transaction that writes those
// entries.
type Wallet struct {
	ID           string
	CustomerID   string
	BalanceCents int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasFunds reports whether the balance is strictly positive.
func (w Wallet) HasFunds() bool {
	return w.BalanceCents > 0
}

// Repository persists wallets and mutates the cached balance.
type Repository interface {
	Create(ctx context.Context, w Wallet) error
	GetByCustomer(ctx context.Context, customerID string) (Wallet, error)
	// Increment adds delta to the balance and returns the new balance.
	Increment(ctx context.Context, walletID string, delta int64) (int64, error)
	// Decrement subtracts delta from the balance and returns the new balance.
	// The result may be negative.
	Decrement(ctx context.Context, walletID string, delta int64) (int64, error)
}
