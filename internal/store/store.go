// Package store groups the repositories behind a unit of work so that a
// ledger append and the matching wallet change commit or roll back together.
package store

import (
	"context"

	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/product"
	"github.com/congo-pay/usage_billing/internal/usage"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Customers() customer.Repository
	Products() product.Repository
	Wallets() wallet.Repository
	Ledger() ledger.Repository
	Usage() usage.Repository
}

// Store runs units of work. If fn returns an error every write made through
// tx is discarded.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}
