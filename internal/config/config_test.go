package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, DriverMessaging, cfg.Messaging.Driver)
	assert.Equal(t, "memory://", cfg.Messaging.TransportURL)
	assert.Equal(t, "notifications", cfg.Messaging.Topic)
	assert.Equal(t, 1024, cfg.Messaging.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Messaging.PublishTimeout)
	assert.Equal(t, byte(1), cfg.Messaging.QoS())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "notifier.yaml", `
server:
  listen: ":9000"
  upstream: "http://127.0.0.1:8081"
messaging:
  transport_url: "mqtt://user:pw@broker:1883"
  publisher_id: "proxy-1"
  notification_topics: "storage"
  notification_driver: "messagingv2"
  publish_timeout: 2s
  mqtt_qos: 0
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, "http://127.0.0.1:8081", cfg.Server.Upstream)
	assert.Equal(t, "mqtt://user:pw@broker:1883", cfg.Messaging.TransportURL)
	assert.Equal(t, "proxy-1", cfg.Messaging.PublisherID)
	assert.Equal(t, "storage", cfg.Messaging.Topic)
	assert.Equal(t, DriverMessagingV2, cfg.Messaging.Driver)
	assert.Equal(t, 2*time.Second, cfg.Messaging.PublishTimeout)
	assert.Equal(t, byte(0), cfg.Messaging.QoS())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Messaging.Workers)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "notifier.toml", `
[server]
listen = ":9100"

[messaging]
transport_url = "https://hooks.example.com/storage"
notification_driver = "messaging"
notification_topics = "swift"
webhook_secret = "s3cret"
workers = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Listen)
	assert.Equal(t, "https://hooks.example.com/storage", cfg.Messaging.TransportURL)
	assert.Equal(t, "swift", cfg.Messaging.Topic)
	assert.Equal(t, "s3cret", cfg.Messaging.WebhookSecret)
	assert.Equal(t, 2, cfg.Messaging.Workers)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown yaml key", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "messaging:\n  transport: mqtt://x\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown toml key", func(t *testing.T) {
		path := writeFile(t, "bad.toml", "[messaging]\ntransport = \"mqtt://x\"\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown key")
	})

	t.Run("unknown driver", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "messaging:\n  notification_driver: carrier-pigeon\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "notification_driver")
	})

	t.Run("qos out of range", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "messaging:\n  mqtt_qos: 3\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mqtt_qos")
	})

	t.Run("relative upstream", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "server:\n  upstream: localhost:8080/v1\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("empty file uses defaults", func(t *testing.T) {
		path := writeFile(t, "empty.yaml", "")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Listen)
	})
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NOTIFIER_TRANSPORT_URL", "tcp://broker:1883")
	t.Setenv("NOTIFIER_DRIVER", "log")
	t.Setenv("NOTIFIER_WORKERS", "8")
	t.Setenv("NOTIFIER_PUBLISH_TIMEOUT", "750ms")
	t.Setenv("NOTIFIER_BUFFER_SIZE", "not-a-number")
	t.Setenv("NOTIFIER_LOG_LEVEL", "warn")

	cfg := &Config{}
	cfg.Messaging.BufferSize = 10
	LoadFromEnv(cfg)

	assert.Equal(t, "tcp://broker:1883", cfg.Messaging.TransportURL)
	assert.Equal(t, DriverLog, cfg.Messaging.Driver)
	assert.Equal(t, 8, cfg.Messaging.Workers)
	assert.Equal(t, 750*time.Millisecond, cfg.Messaging.PublishTimeout)
	assert.Equal(t, 10, cfg.Messaging.BufferSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("NOTIFIER_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnvOrDefault("NOTIFIER_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnvOrDefault("NOTIFIER_TEST_UNSET", "fallback"))
}
