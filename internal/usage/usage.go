package usage

import (
	"context"
	"errors"
	"math"
	"time"
)

// MaxUnits is the largest unit count one event may carry; it matches the
// INTEGER units column.
const MaxUnits = math.MaxInt32

// ErrInvalidCost is returned when an event's cost cannot be represented in
// int64 cents or would be negative.
var ErrInvalidCost = errors.New("usage event cost out of range")

// Event is one metered consumption of a product. UnitPriceCents is copied
// from the product when the event is recorded and never changes afterwards.
// BilledAt is nil while the event is pending.
type Event struct {
	ID             string
	CustomerID     string
	ProductID      string
	Units          int64
	UnitPriceCents int64
	CreatedAt      time.Time
	BilledAt       *time.Time
}

// CostCents is the amount charged for the event. It fails instead of
// wrapping when units * unitPriceCents does not fit in int64.
func (e Event) CostCents() (int64, error) {
	if e.Units <= 0 || e.UnitPriceCents < 0 {
		return 0, ErrInvalidCost
	}
	if e.UnitPriceCents > 0 && e.Units > math.MaxInt64/e.UnitPriceCents {
		return 0, ErrInvalidCost
	}
	return e.Units * e.UnitPriceCents, nil
}

// Pending reports whether the event still awaits billing.
func (e Event) Pending() bool {
	return e.BilledAt == nil
}

// View is the external representation of an event.
type View struct {
	ID             string     `json:"id"`
	ProductID      string     `json:"productId"`
	Units          int64      `json:"units"`
	UnitPriceCents int64      `json:"unitPriceCents"`
	CreatedAt      time.Time  `json:"createdAt"`
	BilledAt       *time.Time `json:"billedAt"`
}

func (e Event) View() View {
	return View{
		ID:             e.ID,
		ProductID:      e.ProductID,
		Units:          e.Units,
		UnitPriceCents: e.UnitPriceCents,
		CreatedAt:      e.CreatedAt,
		BilledAt:       e.BilledAt,
	}
}

// Repository persists usage events.
type Repository interface {
	Create(ctx context.Context, e Event) error
	// PendingCustomerIDs lists distinct customers with at least one pending event.
	PendingCustomerIDs(ctx context.Context) ([]string, error)
	// ListPending returns the customer's pending events, oldest first.
	ListPending(ctx context.Context, customerID string) ([]Event, error)
	// MarkBilled sets billed_at on the given ids that are still pending and
	// returns how many rows changed.
	MarkBilled(ctx context.Context, ids []string, billedAt time.Time) (int64, error)
	// ListByCustomer returns all of the customer's events, newest first.
	ListByCustomer(ctx context.Context, customerID string) ([]Event, error)
}
