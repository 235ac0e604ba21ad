package product

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no product matches the identifier.
var ErrNotFound = errors.New("product not found")

// Product is a metered item with a mutable unit price in cents.
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Repository persists products.
type Repository interface {
	Create(ctx context.Context, p Product) error
	Get(ctx context.Context, id string) (Product, error)
	// List returns all products ordered by name.
	List(ctx context.Context) ([]Product, error)
	UpdatePrice(ctx context.Context, id string, unitPriceCents int64) (Product, error)
}
