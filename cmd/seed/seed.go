package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/congo-pay/usage_billing/internal/billing"
)

var demoProducts = []billing.ProductInput{
	{Name: "API Call", UnitPriceCents: 1},
	{Name: "Image Processing", UnitPriceCents: 10},
	{Name: "Video Processing", UnitPriceCents: 25},
}

const demoCustomers = 10

// demoCustomerID derives a stable id so reruns hit the conflict path instead
// of creating duplicates.
func demoCustomerID(i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("usage-billing-demo-customer-%d", i))).String()
}

func seed(ctx context.Context, svc *billing.Service) (int, int, error) {
	products := 0
	for _, p := range demoProducts {
		_, err := svc.CreateProduct(ctx, p)
		switch {
		case err == nil:
			products++
		case billing.IsKind(err, billing.KindConflict):
		default:
			return products, 0, fmt.Errorf("product %s: %w", p.Name, err)
		}
	}

	customers := 0
	for i := 1; i <= demoCustomers; i++ {
		_, err := svc.CreateCustomer(ctx, billing.CustomerInput{
			ID:                  demoCustomerID(i),
			Name:                fmt.Sprintf("Customer %d", i),
			OpeningBalanceCents: int64(i * 100),
		})
		switch {
		case err == nil:
			customers++
		case billing.IsKind(err, billing.KindConflict):
		default:
			return products, customers, fmt.Errorf("customer %d: %w", i, err)
		}
	}
	return products, customers, nil
}
