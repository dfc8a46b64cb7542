package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv overrides cfg with NOTIFIER_* environment variables
func LoadFromEnv(cfg *Config) {
	if listen := os.Getenv("NOTIFIER_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if upstream := os.Getenv("NOTIFIER_UPSTREAM"); upstream != "" {
		cfg.Server.Upstream = upstream
	}

	// Messaging
	if transport := os.Getenv("NOTIFIER_TRANSPORT_URL"); transport != "" {
		cfg.Messaging.TransportURL = transport
	}
	if publisher := os.Getenv("NOTIFIER_PUBLISHER_ID"); publisher != "" {
		cfg.Messaging.PublisherID = publisher
	}
	if topic := os.Getenv("NOTIFIER_TOPIC"); topic != "" {
		cfg.Messaging.Topic = topic
	}
	if driver := os.Getenv("NOTIFIER_DRIVER"); driver != "" {
		cfg.Messaging.Driver = driver
	}
	if size := os.Getenv("NOTIFIER_BUFFER_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Messaging.BufferSize = n
		}
	}
	if workers := os.Getenv("NOTIFIER_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Messaging.Workers = n
		}
	}
	if timeout := os.Getenv("NOTIFIER_PUBLISH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Messaging.PublishTimeout = d
		}
	}
	if secret := os.Getenv("NOTIFIER_WEBHOOK_SECRET"); secret != "" {
		cfg.Messaging.WebhookSecret = secret
	}

	if level := os.Getenv("NOTIFIER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("NOTIFIER_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
