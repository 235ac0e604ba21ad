// Command seed loads the demo catalog and customers into the configured
// database. It is safe to rerun: existing products are left untouched and
// customers are only created once.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/congo-pay/usage_billing/internal/billing"
	"github.com/congo-pay/usage_billing/internal/config"
	"github.com/congo-pay/usage_billing/internal/infra"
	"github.com/congo-pay/usage_billing/internal/logging"
	"github.com/congo-pay/usage_billing/internal/migration"
	"github.com/congo-pay/usage_billing/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required to seed")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migration.Up(db); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	svc := billing.NewService(store.NewPostgres(db), logger)
	products, customers, err := seed(ctx, svc)
	if err != nil {
		logger.Error("seed", "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete", "products", products, "customers", customers)
}
