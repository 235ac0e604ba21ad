package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/congo-pay/usage_billing/internal/customer"
	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/metrics"
	"github.com/congo-pay/usage_billing/internal/store"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

// CreditInput is a wallet top-up request. An empty or whitespace-only
// IdempotencyKey disables deduplication.
type CreditInput struct {
	CustomerID     string
	AmountCents    int64
	IdempotencyKey string
}

// CreditResult is the wallet balance after the credit.
type CreditResult struct {
	BalanceCents int64 `json:"balanceCents"`
	// Replayed is true when an earlier credit with the same key was returned.
	Replayed bool `json:"-"`
}

// CreditWallet adds funds to the customer's wallet. A request repeating an
// earlier key with the same amount returns the current balance without
// writing; the same key with a different amount is a conflict.
func (s *Service) CreditWallet(ctx context.Context, in CreditInput) (CreditResult, error) {
	const op = "billing.CreditWallet"

	if in.AmountCents <= 0 {
		return CreditResult{}, newError(KindInvalid, op, "amountCents must be a positive integer", nil)
	}
	if err := validID(op, "customerId", in.CustomerID); err != nil {
		return CreditResult{}, err
	}
	key := normalizeKey(in.IdempotencyKey)
	if reservedKey(key) {
		return CreditResult{}, newError(KindInvalid, op, "idempotencyKey uses a reserved prefix", nil)
	}

	var result CreditResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := s.walletFor(ctx, tx, op, in.CustomerID)
		if err != nil {
			return err
		}

		if key != "" {
			existing, err := tx.Ledger().FindByIdempotencyKey(ctx, w.ID, key)
			switch {
			case err == nil:
				if existing.EntryType != ledger.EntryTypeCredit || existing.AmountCents != in.AmountCents {
					return newError(KindConflict, op, "Idempotency-Key already used with different request parameters", nil)
				}
				result = CreditResult{BalanceCents: w.BalanceCents, Replayed: true}
				return nil
			case !errors.Is(err, ledger.ErrNotFound):
				return internalError(op, err)
			}
		}

		_, err = tx.Ledger().Append(ctx, ledger.Entry{
			WalletID:       w.ID,
			AmountCents:    in.AmountCents,
			EntryType:      ledger.EntryTypeCredit,
			SourceType:     ledger.SourceWalletCredit,
			IdempotencyKey: key,
			CreatedAt:      s.clock.Now(),
		})
		switch {
		case errors.Is(err, ledger.ErrDuplicateEntry):
			// Lost a race with a concurrent request carrying the same key.
			current, err := tx.Wallets().GetByCustomer(ctx, in.CustomerID)
			if err != nil {
				return internalError(op, err)
			}
			result = CreditResult{BalanceCents: current.BalanceCents, Replayed: true}
			return nil
		case errors.Is(err, ledger.ErrIdempotencyConflict):
			return newError(KindConflict, op, "Idempotency-Key already used with different request parameters", nil)
		case err != nil:
			return internalError(op, err)
		}

		balance, err := tx.Wallets().Increment(ctx, w.ID, in.AmountCents)
		if err != nil {
			return internalError(op, err)
		}
		result = CreditResult{BalanceCents: balance}
		return nil
	})
	if err != nil {
		if IsKind(err, KindConflict) {
			s.metrics.Credit(metrics.CreditOutcomeConflict)
		}
		return CreditResult{}, err
	}

	if result.Replayed {
		s.metrics.Credit(metrics.CreditOutcomeReplayed)
	} else {
		s.metrics.Credit(metrics.CreditOutcomeApplied)
	}
	return result, nil
}

// reservedKey reports whether key lies in a namespace owned by the service:
// usage debits and opening balances.
func reservedKey(key string) bool {
	return strings.HasPrefix(key, ledger.UsageKeyPrefix) || strings.HasPrefix(key, OpeningKeyPrefix)
}

func (s *Service) walletFor(ctx context.Context, tx store.Tx, op, customerID string) (wallet.Wallet, error) {
	if _, err := tx.Customers().Get(ctx, customerID); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return wallet.Wallet{}, newError(KindNotFound, op, "Customer not found", err)
		}
		return wallet.Wallet{}, internalError(op, err)
	}
	w, err := tx.Wallets().GetByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, wallet.ErrNotFound) {
			return wallet.Wallet{}, newError(KindNotFound, op, "Wallet not found for customer", err)
		}
		return wallet.Wallet{}, internalError(op, err)
	}
	return w, nil
}
