package notifier

import (
	"context"
	"fmt"

	"github.com/FairForge/notifier/internal/events"
	"github.com/FairForge/notifier/internal/queue"
)

// QueueDriver keeps notifications in an in-process broker, one broker topic
// per routing key.
type QueueDriver struct {
	broker *queue.Broker
}

func NewQueueDriver(broker *queue.Broker) *QueueDriver {
	if broker == nil {
		broker = queue.NewBroker()
	}
	return &QueueDriver{broker: broker}
}

// Broker returns the broker notifications land in.
func (d *QueueDriver) Broker() *queue.Broker {
	return d.broker
}

func (d *QueueDriver) Name() string { return "memory" }

func (d *QueueDriver) Send(ctx context.Context, topic string, n *events.Notification) error {
	body, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("memory: marshal notification: %w", err)
	}
	if err := d.broker.EnsureTopic(topic); err != nil {
		return err
	}
	_, err = d.broker.Push(ctx, topic, body, map[string]string{
		"event_type":   n.EventType,
		"message_id":   n.MessageID,
		"publisher_id": n.PublisherID,
		"priority":     n.Priority,
	})
	return err
}

func (d *QueueDriver) Close() error { return nil }
