// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/FairForge/notifier/internal/logging"
)

// Notification drivers
const (
	DriverMessaging   = "messaging"
	DriverMessagingV2 = "messagingv2"
	DriverLog         = "log"
	DriverNoop        = "noop"
)

type Config struct {
	Server    ServerConfig         `yaml:"server" toml:"server"`
	Messaging MessagingConfig      `yaml:"messaging" toml:"messaging"`
	Logging   logging.LoggerConfig `yaml:"logging" toml:"logging"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen" toml:"listen"`
	Upstream        string        `yaml:"upstream" toml:"upstream"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// MessagingConfig is read once when the publisher is built. The first four
// keys keep the names storage operators already use in their proxy configs.
type MessagingConfig struct {
	TransportURL   string        `yaml:"transport_url" toml:"transport_url"`
	PublisherID    string        `yaml:"publisher_id" toml:"publisher_id"`
	Topic          string        `yaml:"notification_topics" toml:"notification_topics"`
	Driver         string        `yaml:"notification_driver" toml:"notification_driver"`
	BufferSize     int           `yaml:"buffer_size" toml:"buffer_size"`
	Workers        int           `yaml:"workers" toml:"workers"`
	PublishTimeout time.Duration `yaml:"publish_timeout" toml:"publish_timeout"`
	MQTTQoS        *int          `yaml:"mqtt_qos" toml:"mqtt_qos"`
	WebhookSecret  string        `yaml:"webhook_secret" toml:"webhook_secret"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills in default values
func (c *Config) ApplyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	m := &c.Messaging
	if m.Driver == "" {
		m.Driver = DriverMessaging
	}
	if m.TransportURL == "" {
		m.TransportURL = "memory://"
	}
	if m.PublisherID == "" {
		m.PublisherID = "swift"
	}
	if m.Topic == "" {
		m.Topic = "notifications"
	}
	if m.BufferSize == 0 {
		m.BufferSize = 1024
	}
	if m.Workers == 0 {
		m.Workers = 4
	}
	if m.PublishTimeout == 0 {
		m.PublishTimeout = 5 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = logging.LevelInfo
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatJSON
	}
}

// Validate checks configuration
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("config: server.listen is required"))
	}
	if c.Server.Upstream != "" {
		u, err := url.Parse(c.Server.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: server.upstream %q is not an absolute URL", c.Server.Upstream))
		}
	}

	if err := c.Messaging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the messaging section
func (m *MessagingConfig) Validate() error {
	var errs []error

	switch m.Driver {
	case DriverMessaging, DriverMessagingV2:
		u, err := url.Parse(m.TransportURL)
		if err != nil || u.Scheme == "" {
			errs = append(errs, fmt.Errorf("config: messaging.transport_url %q is not a URL", m.TransportURL))
		}
	case DriverLog, DriverNoop:
	default:
		errs = append(errs, fmt.Errorf("config: unknown messaging.notification_driver %q", m.Driver))
	}

	if m.Topic == "" {
		errs = append(errs, errors.New("config: messaging.notification_topics is required"))
	}
	if m.BufferSize < 0 {
		errs = append(errs, errors.New("config: messaging.buffer_size must not be negative"))
	}
	if m.Workers < 0 {
		errs = append(errs, errors.New("config: messaging.workers must not be negative"))
	}
	if m.PublishTimeout < 0 {
		errs = append(errs, errors.New("config: messaging.publish_timeout must not be negative"))
	}
	if m.MQTTQoS != nil && (*m.MQTTQoS < 0 || *m.MQTTQoS > 2) {
		errs = append(errs, fmt.Errorf("config: messaging.mqtt_qos %d out of range 0-2", *m.MQTTQoS))
	}
	return errors.Join(errs...)
}

// QoS returns the MQTT delivery guarantee, at-least-once unless configured.
func (m *MessagingConfig) QoS() byte {
	if m.MQTTQoS == nil {
		return 1
	}
	return byte(*m.MQTTQoS)
}

// Load reads a YAML or TOML file (chosen by extension), applies environment
// overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
