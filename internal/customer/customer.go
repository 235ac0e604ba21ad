package customer

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no customer matches the identifier.
var ErrNotFound = errors.New("customer not found")

// Customer is a billable account holder. Each customer owns at most one wallet.
type Customer struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Repository persists customers.
type Repository interface {
	Create(ctx context.Context, c Customer) error
	Get(ctx context.Context, id string) (Customer, error)
}
