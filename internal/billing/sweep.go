package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/congo-pay/usage_billing/internal/ledger"
	"github.com/congo-pay/usage_billing/internal/notification"
	"github.com/congo-pay/usage_billing/internal/store"
	"github.com/congo-pay/usage_billing/internal/usage"
	"github.com/congo-pay/usage_billing/internal/wallet"
)

// SweepReport summarises one billing sweep.
type SweepReport struct {
	BilledAt        time.Time `json:"billedAt"`
	Customers       int       `json:"customers"`
	FailedCustomers int       `json:"failedCustomers"`
	EventsBilled    int       `json:"eventsBilled"`
	DebitedCents    int64     `json:"debitedCents"`
}

// customerResult is the outcome of billing one customer. Err is set when the
// customer's transaction was rolled back or skipped.
type customerResult struct {
	CustomerID   string
	Billed       int
	DebitedCents int64
	PrevBalance  int64
	Balance      int64
	Err          error
}

func (r customerResult) overdrawn() bool {
	return r.Err == nil && r.DebitedCents > 0 && r.PrevBalance >= 0 && r.Balance < 0
}

// RunBillingCron bills every pending usage event and returns how many events
// were marked billed. A failing customer is logged and skipped; only a failure
// to list pending customers is returned.
func (s *Service) RunBillingCron(ctx context.Context) (int, error) {
	report, err := s.Sweep(ctx)
	return report.EventsBilled, err
}

// Sweep is RunBillingCron with the full report.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	const op = "billing.Sweep"

	start := time.Now()
	billedAt := s.clock.Now().UTC()
	report := SweepReport{BilledAt: billedAt}

	var customerIDs []string
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ids, err := tx.Usage().PendingCustomerIDs(ctx)
		customerIDs = ids
		return err
	})
	if err != nil {
		s.metrics.SweepFailed()
		return report, internalError(op, err)
	}
	if len(customerIDs) == 0 {
		s.metrics.SweepCompleted(time.Since(start), 0, 0)
		return report, nil
	}

	for _, customerID := range customerIDs {
		res := s.billCustomer(ctx, customerID, billedAt)
		report.Customers++
		if res.Err != nil {
			report.FailedCustomers++
			s.logCustomerFailure(res)
			continue
		}
		report.EventsBilled += res.Billed
		report.DebitedCents += res.DebitedCents
		if res.overdrawn() {
			s.notify(ctx, notification.WalletOverdrawn(res.CustomerID, res.PrevBalance, res.Balance))
		}
	}

	s.metrics.SweepCompleted(time.Since(start), report.EventsBilled, report.DebitedCents)
	s.logger.Info("billing sweep finished",
		"customers", report.Customers,
		"failed_customers", report.FailedCustomers,
		"events_billed", report.EventsBilled,
		"debited_cents", report.DebitedCents,
		"duration", time.Since(start),
	)
	return report, nil
}

// billCustomer converts the customer's pending usage into ledger debits, one
// wallet decrement and billed_at marks, all in a single transaction.
func (s *Service) billCustomer(ctx context.Context, customerID string, billedAt time.Time) customerResult {
	const op = "billing.billCustomer"

	res := customerResult{CustomerID: customerID}
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.Wallets().GetByCustomer(ctx, customerID)
		if err != nil {
			if errors.Is(err, wallet.ErrNotFound) {
				return newError(KindIntegrityAnomaly, op, "pending usage for customer without wallet", err)
			}
			return internalError(op, err)
		}

		events, err := tx.Usage().ListPending(ctx, customerID)
		if err != nil {
			return internalError(op, err)
		}
		if len(events) == 0 {
			return nil
		}

		entries, total, err := s.debitsFor(ctx, tx, w.ID, events, billedAt)
		if err != nil {
			return err
		}

		res.PrevBalance = w.BalanceCents
		res.Balance = w.BalanceCents
		if len(entries) > 0 {
			if err := tx.Ledger().AppendMany(ctx, entries); err != nil {
				return internalError(op, err)
			}
			balance, err := tx.Wallets().Decrement(ctx, w.ID, total)
			if err != nil {
				return internalError(op, err)
			}
			res.PrevBalance = balance + total
			res.Balance = balance
		}

		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		updated, err := tx.Usage().MarkBilled(ctx, ids, billedAt)
		if err != nil {
			return internalError(op, err)
		}
		if updated != int64(len(ids)) {
			return newError(KindInvariantViolation, op,
				fmt.Sprintf("marked %d of %d usage events billed", updated, len(ids)), nil)
		}

		res.Billed = int(updated)
		res.DebitedCents = total
		return nil
	})
	if err != nil {
		return customerResult{CustomerID: customerID, Err: err}
	}
	return res
}

// debitsFor builds one DEBIT per event that has no USAGE_BILLING entry yet,
// zero-cost events included. Events already debited by an interrupted earlier
// run are only marked billed.
func (s *Service) debitsFor(ctx context.Context, tx store.Tx, walletID string, events []usage.Event, billedAt time.Time) ([]ledger.Entry, int64, error) {
	const op = "billing.debitsFor"

	keys := make([]string, len(events))
	for i, e := range events {
		keys[i] = ledger.UsageKey(e.ID)
	}
	existing, err := tx.Ledger().ExistingKeys(ctx, walletID, ledger.SourceUsageBilling, keys)
	if err != nil {
		return nil, 0, internalError(op, err)
	}

	var (
		entries []ledger.Entry
		total   int64
	)
	for i, e := range events {
		if _, done := existing[keys[i]]; done {
			continue
		}
		cost, err := e.CostCents()
		if err != nil {
			return nil, 0, newError(KindInvalid, op, fmt.Sprintf("cost of usage event %s out of range", e.ID), err)
		}
		if cost > math.MaxInt64-total {
			return nil, 0, newError(KindInvalid, op, "pending usage total overflows int64 cents", nil)
		}
		total += cost
		entries = append(entries, ledger.Entry{
			WalletID:       walletID,
			AmountCents:    -cost,
			EntryType:      ledger.EntryTypeDebit,
			SourceType:     ledger.SourceUsageBilling,
			SourceID:       e.ID,
			IdempotencyKey: keys[i],
			CreatedAt:      billedAt,
		})
	}
	return entries, total, nil
}

func (s *Service) logCustomerFailure(res customerResult) {
	kind := KindOf(res.Err)
	s.metrics.CustomerFailed(string(kind))
	switch kind {
	case KindIntegrityAnomaly:
		s.logger.Error("billing integrity anomaly", "customer_id", res.CustomerID, "error", res.Err)
	case KindInvariantViolation:
		s.logger.Error("billing invariant violation, customer rolled back", "customer_id", res.CustomerID, "error", res.Err)
	default:
		s.logger.Error("billing failed for customer", "customer_id", res.CustomerID, "error", res.Err)
	}
}
