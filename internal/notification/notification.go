package notification

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	// KindWalletOverdrawn is sent when a billing sweep takes a wallet below zero.
	KindWalletOverdrawn = "wallet_overdrawn"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// WalletOverdrawn builds the overdraft notice for a customer.
func WalletOverdrawn(customerID string, previousCents, balanceCents int64) Message {
	return Message{
		Kind:        KindWalletOverdrawn,
		Destination: customerID,
		Body:        fmt.Sprintf("wallet balance went from %d to %d cents", previousCents, balanceCents),
	}
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
