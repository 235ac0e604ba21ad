package store

import (
	"context"
	"sync"

	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/product"
	"github.com/congo-pay/usage_billing/internal/usage"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

// Memory is an in-process store used in dev mode and tests. Units of work are
// serialised and rolled back by restoring snapshots of every repository.
type Memory struct {
	mu        sync.Mutex
	customers *customer.MemoryRepository
	products  *product.MemoryRepository
	wallets   *wallet.MemoryRepository
	ledger    *ledger.MemoryRepository
	usage     *usage.MemoryRepository
}

func NewMemory() *Memory {
	return &Memory{
		customers: customer.NewMemoryRepository(),
		products:  product.NewMemoryRepository(),
		wallets:   wallet.NewMemoryRepository(),
		ledger:    ledger.NewMemoryRepository(),
		usage:     usage.NewMemoryRepository(),
	}
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	restores := []func(){
		m.customers.Snapshot(),
		m.products.Snapshot(),
		m.wallets.Snapshot(),
		m.ledger.Snapshot(),
		m.usage.Snapshot(),
	}
	defer func() {
		if r := recover(); r != nil {
			rollback(restores)
			panic(r)
		}
		if err != nil {
			rollback(restores)
		}
	}()

	return fn(ctx, m)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Customers() customer.Repository { return m.customers }
func (m *Memory) Products() product.Repository   { return m.products }
func (m *Memory) Wallets() wallet.Repository     { return m.wallets }
func (m *Memory) Ledger() ledger.Repository      { return m.ledger }
func (m *Memory) Usage() usage.Repository        { return m.usage }

func rollback(restores []func()) {
	for _, restore := range restores {
		restore()
	}
}
