package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/FairForge/notifier/internal/events"
)

// Driver puts a notification envelope on a bus. topic is the full routing
// key, e.g. "notifications.info".
type Driver interface {
	Name() string
	Send(ctx context.Context, topic string, n *events.Notification) error
	Close() error
}

// NoopDriver discards notifications.
type NoopDriver struct{}

func (NoopDriver) Name() string { return "noop" }

func (NoopDriver) Send(context.Context, string, *events.Notification) error { return nil }

func (NoopDriver) Close() error { return nil }

// LogDriver writes each notification as a structured log line.
type LogDriver struct {
	logger *zap.Logger
}

func NewLogDriver(logger *zap.Logger) *LogDriver {
	return &LogDriver{logger: logger.Named("notifications")}
}

func (d *LogDriver) Name() string { return "log" }

func (d *LogDriver) Send(ctx context.Context, topic string, n *events.Notification) error {
	data, err := n.Payload.JSON()
	if err != nil {
		return err
	}
	d.logger.Info("notification",
		zap.String("topic", topic),
		zap.String("event_type", n.EventType),
		zap.String("message_id", n.MessageID),
		zap.String("publisher_id", n.PublisherID),
		zap.String("timestamp", n.Timestamp),
		zap.String("payload", string(data)),
	)
	return nil
}

func (d *LogDriver) Close() error {
	_ = d.logger.Sync()
	return nil
}
