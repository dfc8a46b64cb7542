package notifier

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/FairForge/notifier/internal/config"
	"github.com/FairForge/notifier/internal/gateway/metrics"
)

// NewDriver builds the driver named by cfg.Driver. The messaging drivers
// pick a transport from the scheme of cfg.TransportURL.
func NewDriver(cfg config.MessagingConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case config.DriverMessaging, config.DriverMessagingV2:
		return newTransport(cfg, logger)
	case config.DriverLog:
		return NewLogDriver(logger), nil
	case config.DriverNoop:
		return NoopDriver{}, nil
	default:
		return nil, fmt.Errorf("notifier: unknown driver %q", cfg.Driver)
	}
}

func newTransport(cfg config.MessagingConfig, logger *zap.Logger) (Driver, error) {
	u, err := url.Parse(cfg.TransportURL)
	if err != nil {
		return nil, fmt.Errorf("notifier: parse transport url: %w", err)
	}

	switch u.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
		d, err := NewMQTTDriver(cfg.TransportURL, MQTTOptions{QoS: cfg.QoS()}, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "http", "https":
		return NewWebhookDriver(cfg.TransportURL, cfg.WebhookSecret, cfg.PublishTimeout), nil
	case "memory":
		return NewQueueDriver(nil), nil
	default:
		return nil, fmt.Errorf("notifier: unsupported transport %q", u.Scheme)
	}
}

// NewFromConfig builds the driver and starts a notifier on it.
func NewFromConfig(cfg config.MessagingConfig, logger *zap.Logger, collector *metrics.Collector) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := NewDriver(cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(driver, Options{
		PublisherID:    cfg.PublisherID,
		Topic:          cfg.Topic,
		BufferSize:     cfg.BufferSize,
		Workers:        cfg.Workers,
		PublishTimeout: cfg.PublishTimeout,
	}, logger, collector), nil
}
