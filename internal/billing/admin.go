package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/product"
	"github.com/congo-pay/usage_billing/internal/store"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

const defaultLedgerLimit = 100

// OpeningKeyPrefix prefixes the key of the credit that funds a new wallet.
const OpeningKeyPrefix = "opening:"

// CustomerInput creates a customer together with its wallet.
type CustomerInput struct {
	ID                  string
	Name                string
	OpeningBalanceCents int64
}

// CustomerView is the admin representation of a customer and wallet.
type CustomerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	WalletID     string `json:"walletId"`
	BalanceCents int64  `json:"balanceCents"`
}

// CreateCustomer provisions a customer and its wallet. A positive opening
// balance is written as a WALLET_CREDIT entry so the wallet starts consistent
// with its ledger.
func (s *Service) CreateCustomer(ctx context.Context, in CustomerInput) (CustomerView, error) {
	const op = "billing.CreateCustomer"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CustomerView{}, newError(KindInvalid, op, "name is required", nil)
	}
	if in.OpeningBalanceCents < 0 {
		return CustomerView{}, newError(KindInvalid, op, "openingBalanceCents must not be negative", nil)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	} else if err := validID(op, "id", id); err != nil {
		return CustomerView{}, err
	}

	now := s.clock.Now()
	c := customer.Customer{ID: id, Name: name, CreatedAt: now}
	w := wallet.Wallet{ID: uuid.NewString(), CustomerID: id, CreatedAt: now}

	view := CustomerView{ID: id, Name: name, WalletID: w.ID}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Customers().Get(ctx, id); err == nil {
			return newError(KindConflict, op, "customer already exists", nil)
		} else if !errors.Is(err, customer.ErrNotFound) {
			return internalError(op, err)
		}
		if err := tx.Customers().Create(ctx, c); err != nil {
			return internalError(op, err)
		}
		if err := tx.Wallets().Create(ctx, w); err != nil {
			return internalError(op, err)
		}
		if in.OpeningBalanceCents == 0 {
			return nil
		}
		if _, err := tx.Ledger().Append(ctx, ledger.Entry{
			WalletID:       w.ID,
			AmountCents:    in.OpeningBalanceCents,
			EntryType:      ledger.EntryTypeCredit,
			SourceType:     ledger.SourceWalletCredit,
			IdempotencyKey: OpeningKeyPrefix + w.ID,
			CreatedAt:      now,
		}); err != nil {
			return internalError(op, err)
		}
		balance, err := tx.Wallets().Increment(ctx, w.ID, in.OpeningBalanceCents)
		if err != nil {
			return internalError(op, err)
		}
		view.BalanceCents = balance
		return nil
	})
	if err != nil {
		return CustomerView{}, err
	}
	return view, nil
}

// ProductInput creates a product.
type ProductInput struct {
	ID             string
	Name           string
	UnitPriceCents int64
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (product.Product, error) {
	const op = "billing.CreateProduct"

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return product.Product{}, newError(KindInvalid, op, "name is required", nil)
	}
	if in.UnitPriceCents < 0 {
		return product.Product{}, newError(KindInvalid, op, "unitPriceCents must not be negative", nil)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	} else if err := validID(op, "id", id); err != nil {
		return product.Product{}, err
	}

	now := s.clock.Now()
	p := product.Product{ID: id, Name: name, UnitPriceCents: in.UnitPriceCents, CreatedAt: now, UpdatedAt: now}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.Products().List(ctx)
		if err != nil {
			return internalError(op, err)
		}
		for _, e := range existing {
			if e.ID == id || e.Name == name {
				return newError(KindConflict, op, "product already exists", nil)
			}
		}
		if err := tx.Products().Create(ctx, p); err != nil {
			return internalError(op, err)
		}
		return nil
	})
	if err != nil {
		return product.Product{}, err
	}
	return p, nil
}

// UpdateProductPrice changes the price applied to usage recorded from now on.
// Already recorded events keep their snapshot.
func (s *Service) UpdateProductPrice(ctx context.Context, productID string, unitPriceCents int64) (product.Product, error) {
	const op = "billing.UpdateProductPrice"

	if unitPriceCents < 0 {
		return product.Product{}, newError(KindInvalid, op, "unitPriceCents must not be negative", nil)
	}
	if err := validID(op, "productId", productID); err != nil {
		return product.Product{}, err
	}

	var updated product.Product
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Products().UpdatePrice(ctx, productID, unitPriceCents)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return newError(KindNotFound, op, "Product not found", err)
			}
			return internalError(op, err)
		}
		updated = p
		return nil
	})
	return updated, err
}

// ListProducts returns the catalog ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]product.Product, error) {
	const op = "billing.ListProducts"

	var out []product.Product
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.Products().List(ctx)
		if err != nil {
			return internalError(op, err)
		}
		out = list
		return nil
	})
	if out == nil {
		out = []product.Product{}
	}
	return out, err
}

// LedgerView is the audit trail of a wallet. Consistent reports whether the
// cached balance equals the sum of all ledger entries.
type LedgerView struct {
	CustomerID     string         `json:"customerId"`
	WalletID       string         `json:"walletId"`
	BalanceCents   int64          `json:"balanceCents"`
	LedgerSumCents int64          `json:"ledgerSumCents"`
	Consistent     bool           `json:"consistent"`
	Entries        []ledger.Entry `json:"entries"`
}

// WalletLedger returns the newest entries of the customer's wallet and checks
// the cached balance against the full ledger sum.
func (s *Service) WalletLedger(ctx context.Context, customerID string, limit int) (LedgerView, error) {
	const op = "billing.WalletLedger"

	if err := validID(op, "customerId", customerID); err != nil {
		return LedgerView{}, err
	}
	if limit <= 0 || limit > 1000 {
		limit = defaultLedgerLimit
	}

	var view LedgerView
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := s.walletFor(ctx, tx, op, customerID)
		if err != nil {
			return err
		}
		sum, err := tx.Ledger().Sum(ctx, w.ID)
		if err != nil {
			return internalError(op, err)
		}
		entries, err := tx.Ledger().ListByWallet(ctx, w.ID, limit)
		if err != nil {
			return internalError(op, err)
		}
		if entries == nil {
			entries = []ledger.Entry{}
		}
		view = LedgerView{
			CustomerID:     customerID,
			WalletID:       w.ID,
			BalanceCents:   w.BalanceCents,
			LedgerSumCents: sum,
			Consistent:     sum == w.BalanceCents,
			Entries:        entries,
		}
		if !view.Consistent {
			s.logger.Error("wallet balance diverged from ledger", "customer_id", customerID, "wallet_id", w.ID,
				"balance_cents", w.BalanceCents, "ledger_sum_cents", sum)
		}
		return nil
	})
	return view, err
}
