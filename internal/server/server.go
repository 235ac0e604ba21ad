package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/usage_billing/internal/billing"
	"github.com/congo-pay/usage_billing/internal/config"
	"github.com/congo-pay/usage_billing/internal/lock"
	"github.com/congo-pay/usage_billing/internal/metrics"
	"github.com/congo-pay/usage_billing/internal/notification"
	"github.com/congo-pay/usage_billing/internal/routes"
	"github.com/congo-pay/usage_billing/internal/store"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	db       *pgxpool.Pool
	cache    *redis.Client
	logger   *slog.Logger
	cron     *billing.Cron
	registry *prometheus.Registry
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// A nil db selects the in-memory store, which is only accepted in dev.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	var (
		st     store.Store
		locker lock.Locker
	)
	switch {
	case db != nil:
		st = store.NewPostgres(db)
		locker = lock.NewPostgres(db)
	case cfg.IsDev():
		logger.Warn("no database configured, using in-memory store")
		st = store.NewMemory()
		locker = lock.NewMemory()
	default:
		return nil, errors.New("database pool is required outside dev")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBilling(registry, metrics.Config{ServiceName: cfg.AppName, Environment: cfg.AppEnv})

	svc := billing.NewService(st, logger,
		billing.WithMetrics(m),
		billing.WithNotifier(notification.NewLoggerNotifier(logger)),
	)

	var cron *billing.Cron
	if cfg.BillingEnabled {
		owner := cfg.BillingLockOwner
		if owner == "" {
			owner = lock.DefaultOwner()
		}
		cron = billing.NewCron(svc, locker, billing.CronConfig{
			Interval: cfg.BillingInterval,
			LockName: cfg.BillingLockName,
			Owner:    owner,
		}, logger, m)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler(logger),
	})

	if err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		Store:    st,
		Cache:    cache,
		Logger:   logger,
		Billing:  svc,
		Cron:     cron,
		Gatherer: registry,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, db: db, cache: cache, logger: logger, cron: cron, registry: registry}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// StartBilling tries to become the billing leader. Losing the election is not
// an error; the instance keeps serving HTTP.
func (s *Server) StartBilling(ctx context.Context) error {
	if s.cron == nil {
		s.logger.Info("billing cron disabled")
		return nil
	}
	_, err := s.cron.Start(ctx)
	return err
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then the billing cron so the
// lock is released after in-flight sweeps finish.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)
	var cronErr error
	if s.cron != nil {
		cronErr = s.cron.Stop(ctx)
	}
	return errors.Join(httpErr, cronErr)
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := http.StatusInternalServerError
		message := "internal error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled request error", "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}
