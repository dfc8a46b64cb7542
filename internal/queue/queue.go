// Package queue is an in-process topic broker for notifications. It backs the
// memory:// transport and lets tests and local setups consume what the
// notifier publishes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTopicNotFound  = errors.New("queue: topic not found")
	ErrTopicExists    = errors.New("queue: topic already exists")
	ErrTopicFull      = errors.New("queue: topic is full")
	ErrInvalidReceipt = errors.New("queue: invalid receipt")
)

// TopicConfig configures a topic
type TopicConfig struct {
	Name              string        `yaml:"name" toml:"name"`
	MaxReceives       int           `yaml:"max_receives" toml:"max_receives"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" toml:"visibility_timeout"`
	DeadLetterTopic   string        `yaml:"dead_letter_topic,omitempty" toml:"dead_letter_topic"`
	MaxDepth          int           `yaml:"max_depth" toml:"max_depth"`
}

// DefaultTopicConfig returns sensible defaults
func DefaultTopicConfig() *TopicConfig {
	return &TopicConfig{
		MaxReceives:       3,
		VisibilityTimeout: 30 * time.Second,
		MaxDepth:          10000,
	}
}

// Validate checks configuration
func (c *TopicConfig) Validate() error {
	if c.Name == "" {
		return errors.New("queue: name is required")
	}
	if c.DeadLetterTopic == c.Name {
		return errors.New("queue: topic cannot be its own dead letter topic")
	}
	if c.MaxReceives < 0 || c.MaxDepth < 0 || c.VisibilityTimeout < 0 {
		return errors.New("queue: limits must not be negative")
	}
	return nil
}

// ApplyDefaults fills in default values
func (c *TopicConfig) ApplyDefaults() {
	defaults := DefaultTopicConfig()
	if c.MaxReceives == 0 {
		c.MaxReceives = defaults.MaxReceives
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = defaults.VisibilityTimeout
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = defaults.MaxDepth
	}
}

// Message is one notification held by a topic.
type Message struct {
	ID          string
	Topic       string
	Body        []byte
	Attributes  map[string]string
	Receives    int
	PublishedAt time.Time
	Receipt     string

	visibleAt time.Time
}

// Stats is a point-in-time view of a topic.
type Stats struct {
	Ready    int
	InFlight int
}

type topic struct {
	config   TopicConfig
	ready    []*Message
	inFlight map[string]*Message
	mu       sync.Mutex
}

// Broker owns a set of named topics.
type Broker struct {
	topics map[string]*topic
	mu     sync.RWMutex
	now    func() time.Time
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]*topic),
		now:    time.Now,
	}
}

// CreateTopic registers a topic.
func (b *Broker) CreateTopic(config TopicConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	config.ApplyDefaults()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.topics[config.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTopicExists, config.Name)
	}
	b.topics[config.Name] = &topic{
		config:   config,
		inFlight: make(map[string]*Message),
	}
	return nil
}

// EnsureTopic creates name with default settings unless it already exists.
func (b *Broker) EnsureTopic(name string) error {
	err := b.CreateTopic(TopicConfig{Name: name})
	if errors.Is(err, ErrTopicExists) {
		return nil
	}
	return err
}

// DeleteTopic drops a topic and everything in it
func (b *Broker) DeleteTopic(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.topics[name]; !exists {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}
	delete(b.topics, name)
	return nil
}

// Topics returns the topic names in order.
func (b *Broker) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *Broker) topic(name string) (*topic, error) {
	b.mu.RLock()
	t, exists := b.topics[name]
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}
	return t, nil
}

// Push appends a message to a topic and returns its id.
func (b *Broker) Push(ctx context.Context, topicName string, body []byte, attrs map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t, err := b.topic(topicName)
	if err != nil {
		return "", err
	}

	now := b.now()
	msg := &Message{
		ID:          uuid.New().String(),
		Topic:       topicName,
		Body:        append([]byte(nil), body...),
		Attributes:  make(map[string]string, len(attrs)),
		PublishedAt: now.UTC(),
		visibleAt:   now,
	}
	for k, v := range attrs {
		msg.Attributes[k] = v
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ready)+len(t.inFlight) >= t.config.MaxDepth {
		return "", fmt.Errorf("%w: %s", ErrTopicFull, topicName)
	}
	t.ready = append(t.ready, msg)
	return msg.ID, nil
}

// Pop receives the oldest ready message, or nil when the topic is empty. The
// message stays invisible to other receivers until it is acknowledged or its
// visibility timeout lapses.
func (b *Broker) Pop(ctx context.Context, topicName string) (*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := b.topic(topicName)
	if err != nil {
		return nil, err
	}

	now := b.now()
	b.deadLetter(t, t.reclaim(now))

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.ready) == 0 {
		return nil, nil
	}
	msg := t.ready[0]
	t.ready[0] = nil
	t.ready = t.ready[1:]

	msg.Receives++
	msg.Receipt = uuid.New().String()
	msg.visibleAt = now.Add(t.config.VisibilityTimeout)
	t.inFlight[msg.Receipt] = msg

	out := *msg
	return &out, nil
}

// Ack removes a received message for good.
func (b *Broker) Ack(ctx context.Context, topicName, receipt string) error {
	t, err := b.topic(topicName)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.inFlight[receipt]; !exists {
		return ErrInvalidReceipt
	}
	delete(t.inFlight, receipt)
	return nil
}

// Nack hands a received message back for redelivery, or to the dead letter
// topic once it has been received MaxReceives times.
func (b *Broker) Nack(ctx context.Context, topicName, receipt string) error {
	t, err := b.topic(topicName)
	if err != nil {
		return err
	}

	t.mu.Lock()
	msg, exists := t.inFlight[receipt]
	if !exists {
		t.mu.Unlock()
		return ErrInvalidReceipt
	}
	delete(t.inFlight, receipt)
	var dead []*Message
	if t.exhausted(msg) {
		dead = append(dead, msg)
	} else {
		t.requeue(msg, b.now())
	}
	t.mu.Unlock()

	b.deadLetter(t, dead)
	return nil
}

// Stats reports ready and in-flight counts.
func (b *Broker) Stats(topicName string) (Stats, error) {
	t, err := b.topic(topicName)
	if err != nil {
		return Stats{}, err
	}
	b.deadLetter(t, t.reclaim(b.now()))

	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Ready: len(t.ready), InFlight: len(t.inFlight)}, nil
}

// Purge removes all messages from a topic
func (b *Broker) Purge(ctx context.Context, topicName string) error {
	t, err := b.topic(topicName)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ready = nil
	t.inFlight = make(map[string]*Message)
	return nil
}

// reclaim returns expired in-flight messages to the ready list and hands
// back the ones that have used up their receives.
func (t *topic) reclaim(now time.Time) []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dead []*Message
	for receipt, msg := range t.inFlight {
		if now.Before(msg.visibleAt) {
			continue
		}
		delete(t.inFlight, receipt)
		if t.exhausted(msg) {
			dead = append(dead, msg)
			continue
		}
		t.requeue(msg, now)
	}
	return dead
}

func (t *topic) exhausted(msg *Message) bool {
	return t.config.DeadLetterTopic != "" && msg.Receives >= t.config.MaxReceives
}

func (t *topic) requeue(msg *Message, now time.Time) {
	msg.Receipt = ""
	msg.visibleAt = now
	t.ready = append(t.ready, msg)
}

// deadLetter moves messages to the topic's dead letter topic. Messages are
// discarded when that topic does not exist.
func (b *Broker) deadLetter(from *topic, msgs []*Message) {
	if len(msgs) == 0 {
		return
	}
	dlq, err := b.topic(from.config.DeadLetterTopic)
	if err != nil {
		return
	}

	now := b.now()
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	for _, msg := range msgs {
		msg.Topic = dlq.config.Name
		msg.Receipt = ""
		msg.Receives = 0
		msg.visibleAt = now
		dlq.ready = append(dlq.ready, msg)
	}
}
