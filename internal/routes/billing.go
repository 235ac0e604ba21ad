package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/usage_billing/internal/billing"
	"github.com/congo-pay/usage_billing/internal/middleware"
)

// RegisterBillingRoutes wires the public billing and catalog endpoints. Usage
// submissions get Redis backed replay and rate limiting when a cache is
// configured; credit deduplication lives in the ledger itself.
func RegisterBillingRoutes(r fiber.Router, h *billing.Handler, d Deps) {
	usageChain := []fiber.Handler{}
	if d.Cache != nil {
		usageChain = append(usageChain,
			middleware.UsageRateLimit(d.Cache, d.Cfg.UsageRateLimitPerMinute, d.Logger),
			middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
		)
	}
	usageChain = append(usageChain, h.SubmitUsage)

	r.Get("/products", h.ListProducts)
	r.Post("/billing/usage", usageChain...)
	r.Post("/billing/credit", h.Credit)
	r.Get("/billing/balance/:customerId", h.Balance)
	r.Get("/billing/ledger/:customerId", h.Ledger)
}

// RegisterAdminRoutes wires operator endpoints behind AdminAuth.
func RegisterAdminRoutes(r fiber.Router, h *billing.Handler) {
	r.Post("/customers", h.CreateCustomer)
	r.Post("/products", h.CreateProduct)
	r.Patch("/products/:productId/price", h.UpdateProductPrice)
	r.Post("/billing/run", h.RunSweep)
}
