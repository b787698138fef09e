package service

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers workflow events to the notification service. Delivery
// is fire-and-forget from the engine's perspective; the dispatcher bounds
// retries.
type Notifier interface {
	Notify(ctx context.Context, recipientID, eventKind string, payload map[string]interface{}) error
}

// NotifierFunc allows plain functions as notifiers.
type NotifierFunc func(ctx context.Context, recipientID, eventKind string, payload map[string]interface{}) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, recipientID, eventKind string, payload map[string]interface{}) error {
	return f(ctx, recipientID, eventKind, payload)
}

// LogNotifier records notifications in the service log. Stands in until the
// platform notification gateway is wired.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, recipientID, eventKind string, payload map[string]interface{}) error {
	n.logger.Info("notification dispatched",
		zap.String("recipient", recipientID),
		zap.String("event", eventKind),
		zap.Any("payload", payload),
	)
	return nil
}
