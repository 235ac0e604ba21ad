package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/usage_billing/internal/billing"
	"github.com/congo-pay/usage_billing/internal/config"
	"github.com/congo-pay/usage_billing/internal/middleware"
	"github.com/congo-pay/usage_billing/internal/store"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Store    store.Store
	Cache    *redis.Client
	Logger   *slog.Logger
	Billing  *billing.Service
	Cron     *billing.Cron
	Gatherer prometheus.Gatherer
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Store == nil || d.Billing == nil {
		return fmt.Errorf("store and billing service are required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Gatherer)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.GetRequestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	h := billing.NewHandler(d.Billing, d.Cron)
	RegisterBillingRoutes(api, h, d)
	RegisterAdminRoutes(api.Group("/admin", middleware.AdminAuth(d.Cfg.AdminTokenHash)), h)

	return nil
}
