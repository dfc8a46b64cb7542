// Package notifier delivers storage events to a message bus without holding
// up the request that produced them.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FairForge/notifier/internal/events"
	"github.com/FairForge/notifier/internal/gateway/metrics"
)

// Options configures a Notifier
type Options struct {
	PublisherID    string
	Topic          string
	BufferSize     int
	Workers        int
	PublishTimeout time.Duration
}

// ApplyDefaults fills in default values
func (o *Options) ApplyDefaults() {
	if o.Topic == "" {
		o.Topic = "notifications"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 1024
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
}

type job struct {
	ctx  context.Context
	note *events.Notification
}

// Notifier wraps events in notification envelopes and hands them to a
// Driver from a fixed pool of workers. Publish never blocks: when the buffer
// is full the event is dropped.
type Notifier struct {
	driver  Driver
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector

	jobs   chan job
	group  *errgroup.Group
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// New starts a notifier on driver. collector may be nil.
func New(driver Driver, opts Options, logger *zap.Logger, collector *metrics.Collector) *Notifier {
	opts.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	n := &Notifier{
		driver:  driver,
		opts:    opts,
		logger:  logger.Named("notifier").With(zap.String("driver", driver.Name())),
		metrics: collector,
		jobs:    make(chan job, opts.BufferSize),
		group:   &errgroup.Group{},
		now:     time.Now,
	}
	for i := 0; i < opts.Workers; i++ {
		n.group.Go(n.work)
	}
	return n
}

// Driver returns the driver notifications are sent through.
func (n *Notifier) Driver() Driver {
	return n.driver
}

// RoutingKey is the topic every notification is sent on.
func (n *Notifier) RoutingKey() string {
	return fmt.Sprintf("%s.%s", n.opts.Topic, strings.ToLower(events.PriorityInfo))
}

// Publish queues one event for delivery.
func (n *Notifier) Publish(ctx context.Context, eventType string, payload events.Payload) {
	note := events.NewNotification(n.opts.PublisherID, eventType, payload, n.now())

	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.drop(note, "notifier closed")
		return
	}
	select {
	case n.jobs <- job{ctx: ctx, note: note}:
		n.reportDepth()
	default:
		n.drop(note, "buffer full")
	}
}

func (n *Notifier) drop(note *events.Notification, reason string) {
	n.logger.Warn("dropping notification",
		zap.String("reason", reason),
		zap.String("event_type", note.EventType),
		zap.String("message_id", note.MessageID),
	)
	if n.metrics != nil {
		n.metrics.RecordDropped()
	}
}

func (n *Notifier) work() error {
	for j := range n.jobs {
		n.reportDepth()
		n.send(j)
	}
	return nil
}

func (n *Notifier) send(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, n.opts.PublishTimeout)
	defer cancel()

	err := n.driver.Send(ctx, n.RoutingKey(), j.note)
	switch {
	case err == nil:
		n.recordSend(metrics.PublishOK)
	case errors.Is(err, context.DeadlineExceeded):
		n.recordSend(metrics.PublishTimeout)
		n.logger.Warn("notification send timed out",
			zap.String("event_type", j.note.EventType),
			zap.String("message_id", j.note.MessageID),
			zap.Duration("timeout", n.opts.PublishTimeout),
		)
	default:
		n.recordSend(metrics.PublishError)
		n.logger.Error("notification send failed",
			zap.String("event_type", j.note.EventType),
			zap.String("message_id", j.note.MessageID),
			zap.Error(err),
		)
	}
}

func (n *Notifier) recordSend(result string) {
	if n.metrics != nil {
		n.metrics.RecordSend(n.driver.Name(), result)
	}
}

func (n *Notifier) reportDepth() {
	if n.metrics != nil {
		n.metrics.SetQueueDepth(len(n.jobs))
	}
}

// Close stops accepting events, waits for the buffer to drain and closes
// the driver. If ctx ends first the remaining events are abandoned.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.jobs)
	n.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- n.group.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		n.logger.Warn("notifier closed before buffer drained", zap.Int("pending", len(n.jobs)))
		return errors.Join(ctx.Err(), n.driver.Close())
	}
	return n.driver.Close()
}
