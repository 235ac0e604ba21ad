package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/infra"
	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/migration"
	"github.com/congo-pay/usage_billing/internal/product"
	"github.com/congo-pay/usage_billing/internal/usage"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

// Runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := migration.Up(pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := NewPostgres(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := customer.Customer{ID: uuid.NewString(), Name: "round trip", CreatedAt: now}
	w := wallet.Wallet{ID: uuid.NewString(), CustomerID: c.ID, CreatedAt: now}
	p := product.Product{ID: uuid.NewString(), Name: "rt-" + uuid.NewString(), UnitPriceCents: 27, CreatedAt: now, UpdatedAt: now}
	ev := usage.Event{ID: uuid.NewString(), CustomerID: c.ID, ProductID: p.ID, Units: 10, UnitPriceCents: 27, CreatedAt: now}

	err = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Customers().Create(ctx, c); err != nil {
			return err
		}
		if err := tx.Wallets().Create(ctx, w); err != nil {
			return err
		}
		if err := tx.Products().Create(ctx, p); err != nil {
			return err
		}
		if _, err := tx.Ledger().Append(ctx, ledger.Entry{WalletID: w.ID, AmountCents: 1_000, EntryType: ledger.EntryTypeCredit, SourceType: ledger.SourceWalletCredit, IdempotencyKey: "k1"}); err != nil {
			return err
		}
		if _, err := tx.Wallets().Increment(ctx, w.ID, 1_000); err != nil {
			return err
		}
		return tx.Usage().Create(ctx, ev)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.Ledger().Append(ctx, ledger.Entry{WalletID: w.ID, AmountCents: 900, EntryType: ledger.EntryTypeCredit, SourceType: ledger.SourceWalletCredit, IdempotencyKey: "k1"})
		if !errors.Is(err, ledger.ErrIdempotencyConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
		pending, err := tx.Usage().ListPending(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(pending) != 1 {
			t.Fatalf("expected 1 pending event, got %d", len(pending))
		}
		if err := tx.Ledger().AppendMany(ctx, []ledger.Entry{{
			WalletID: w.ID, AmountCents: -270, EntryType: ledger.EntryTypeDebit,
			SourceType: ledger.SourceUsageBilling, SourceID: ev.ID, IdempotencyKey: ledger.UsageKey(ev.ID), CreatedAt: now,
		}}); err != nil {
			return err
		}
		if _, err := tx.Wallets().Decrement(ctx, w.ID, 270); err != nil {
			return err
		}
		n, err := tx.Usage().MarkBilled(ctx, []string{ev.ID}, now)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Fatalf("expected 1 billed, got %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}

	_ = s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		got, err := tx.Wallets().GetByCustomer(ctx, c.ID)
		if err != nil {
			t.Fatalf("wallet: %v", err)
		}
		sum, err := tx.Ledger().Sum(ctx, w.ID)
		if err != nil {
			t.Fatalf("sum: %v", err)
		}
		if got.BalanceCents != 730 || sum != 730 {
			t.Fatalf("expected 730/730, got %d/%d", got.BalanceCents, sum)
		}
		return nil
	})
}
