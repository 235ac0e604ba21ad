package billing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/congo-pay/usage_billing/internal/clock"
	"github.com/congo-pay/usage_billing/internal/metrics"
	"github.com/congo-pay/usage_billing/internal/notification"
	"github.com/congo-pay/usage_billing/internal/store"
)

// Service implements crediting, usage recording, balance queries and the
// billing sweep on top of a transactional store.
type Service struct {
	store    store.Store
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Billing
	notifier notification.Notifier
}

// Option customises a Service.
type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithMetrics(m *metrics.Billing) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService builds a billing service.
func NewService(st store.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		clock:  clock.System(),
		logger: logger.With("component", "billing"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validID(op, field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return newError(KindInvalid, op, field+" must be a UUID", nil)
	}
	return nil
}

// normalizeKey trims the key; whitespace-only keys count as absent.
func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed", "kind", msg.Kind, "error", err)
	}
}
