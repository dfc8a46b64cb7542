package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payload is the flat body of a storage notification. Values are scalars:
// string, bool, int64 or nil for an identity field the request did not carry.
type Payload map[string]any

// JSON encodes the payload. Keys are emitted in sorted order so the same
// payload always encodes to the same bytes.
func (p Payload) JSON() ([]byte, error) {
	return json.Marshal(p)
}

// Event is a synthesized notification before it is handed to a publisher.
type Event struct {
	Type    string
	Payload Payload
}

// Priority levels understood by notification consumers.
const (
	PriorityInfo  = "INFO"
	PriorityWarn  = "WARN"
	PriorityError = "ERROR"
)

// NotificationTimeFormat is the envelope timestamp layout.
const NotificationTimeFormat = "2006-01-02 15:04:05.000000"

// Notification is the envelope put on the bus.
type Notification struct {
	MessageID   string  `json:"message_id"`
	PublisherID string  `json:"publisher_id"`
	EventType   string  `json:"event_type"`
	Priority    string  `json:"priority"`
	Payload     Payload `json:"payload"`
	Timestamp   string  `json:"timestamp"`
}

// NewNotification wraps a payload in an INFO envelope with a fresh message id.
func NewNotification(publisherID, eventType string, payload Payload, at time.Time) *Notification {
	return &Notification{
		MessageID:   uuid.New().String(),
		PublisherID: publisherID,
		EventType:   eventType,
		Priority:    PriorityInfo,
		Payload:     payload,
		Timestamp:   at.UTC().Format(NotificationTimeFormat),
	}
}

// Marshal encodes the envelope for transport.
func (n *Notification) Marshal() ([]byte, error) {
	return json.Marshal(n)
}
