package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/congo-pay/usage_billing/internal/product"
	"github.com/congo-pay/usage_billing/internal/store"
	"github.com/congo-pay/usage_billing/internal/usage"
)

// UsageInput is one metered consumption reported by a client.
type UsageInput struct {
	CustomerID string
	ProductID  string
	Units      int64
}

// SubmitUsage records a pending usage event priced at the product's current
// unit price. No money moves until the next billing sweep.
func (s *Service) SubmitUsage(ctx context.Context, in UsageInput) (usage.View, error) {
	const op = "billing.SubmitUsage"

	if in.Units <= 0 {
		return usage.View{}, newError(KindInvalid, op, "units must be a positive integer", nil)
	}
	if in.Units > usage.MaxUnits {
		return usage.View{}, newError(KindInvalid, op, fmt.Sprintf("units must not exceed %d", usage.MaxUnits), nil)
	}
	if err := validID(op, "customerId", in.CustomerID); err != nil {
		return usage.View{}, err
	}
	if err := validID(op, "productId", in.ProductID); err != nil {
		return usage.View{}, err
	}

	var event usage.Event
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := s.walletFor(ctx, tx, op, in.CustomerID); err != nil {
			return err
		}
		p, err := tx.Products().Get(ctx, in.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrNotFound) {
				return newError(KindNotFound, op, "Product not found", err)
			}
			return internalError(op, err)
		}

		event = usage.Event{
			ID:             uuid.NewString(),
			CustomerID:     in.CustomerID,
			ProductID:      p.ID,
			Units:          in.Units,
			UnitPriceCents: p.UnitPriceCents,
			CreatedAt:      s.clock.Now(),
		}
		if err := tx.Usage().Create(ctx, event); err != nil {
			return internalError(op, err)
		}
		return nil
	})
	if err != nil {
		return usage.View{}, err
	}

	s.metrics.UsageRecorded()
	return event.View(), nil
}

// BalanceView is the customer's cached balance plus full usage history,
// newest first.
type BalanceView struct {
	CustomerID   string       `json:"customerId"`
	BalanceCents int64        `json:"balanceCents"`
	HasFunds     bool         `json:"hasFunds"`
	UsageDetails []usage.View `json:"usageDetails"`
}

// GetBalance reads the cached wallet balance and usage history.
func (s *Service) GetBalance(ctx context.Context, customerID string) (BalanceView, error) {
	const op = "billing.GetBalance"

	if err := validID(op, "customerId", customerID); err != nil {
		return BalanceView{}, err
	}

	var view BalanceView
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err := s.walletFor(ctx, tx, op, customerID)
		if err != nil {
			return err
		}
		events, err := tx.Usage().ListByCustomer(ctx, customerID)
		if err != nil {
			return internalError(op, err)
		}
		details := make([]usage.View, 0, len(events))
		for _, e := range events {
			details = append(details, e.View())
		}
		view = BalanceView{
			CustomerID:   customerID,
			BalanceCents: w.BalanceCents,
			HasFunds:     w.HasFunds(),
			UsageDetails: details,
		}
		return nil
	})
	return view, err
}
