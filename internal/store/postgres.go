package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/infra"
	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/product"
	"github.com/congo-pay/usage_billing/internal/usage"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

// Postgres runs each unit of work in a READ COMMITTED transaction. Concurrent
// writers are serialised by row locks taken by the wallet UPDATE and by the
// conditional billed_at update.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, pgTx{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTx struct {
	db infra.DBTX
}

func (t pgTx) Customers() customer.Repository { return customer.NewPostgresRepository(t.db) }
func (t pgTx) Products() product.Repository   { return product.NewPostgresRepository(t.db) }
func (t pgTx) Wallets() wallet.Repository     { return wallet.NewPostgresRepository(t.db) }
func (t pgTx) Ledger() ledger.Repository      { return ledger.NewPostgresRepository(t.db) }
func (t pgTx) Usage() usage.Repository        { return usage.NewPostgresRepository(t.db) }
