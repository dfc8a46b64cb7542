package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/notifier/internal/events"
)

var ErrNotConnected = errors.New("mqtt: not connected")

// MQTTClient is the part of the paho client the driver uses.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// DefaultMQTTClient wraps the paho MQTT client
type DefaultMQTTClient struct {
	client mqtt.Client
}

func (d *DefaultMQTTClient) Connect() mqtt.Token {
	return d.client.Connect()
}

func (d *DefaultMQTTClient) Disconnect(quiesce uint) {
	d.client.Disconnect(quiesce)
}

func (d *DefaultMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return d.client.Publish(topic, qos, retained, payload)
}

func (d *DefaultMQTTClient) IsConnected() bool {
	return d.client.IsConnected()
}

// MQTTOptions configures an MQTTDriver
type MQTTOptions struct {
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTTDriver publishes notification envelopes to an MQTT broker.
type MQTTDriver struct {
	client MQTTClient
	qos    byte
	logger *zap.Logger
}

// NewMQTTDriver connects to the broker named by transportURL. Accepted
// schemes are mqtt, mqtts, tcp, ssl, ws and wss; credentials come from the
// URL's userinfo.
func NewMQTTDriver(transportURL string, opts MQTTOptions, logger *zap.Logger) (*MQTTDriver, error) {
	return newMQTTDriver(transportURL, opts, logger, func(o *mqtt.ClientOptions) MQTTClient {
		return &DefaultMQTTClient{client: mqtt.NewClient(o)}
	})
}

func newMQTTDriver(transportURL string, opts MQTTOptions, logger *zap.Logger, clientFactory func(*mqtt.ClientOptions) MQTTClient) (*MQTTDriver, error) {
	u, err := url.Parse(transportURL)
	if err != nil {
		return nil, fmt.Errorf("mqtt: parse transport url: %w", err)
	}
	broker, err := brokerURL(u)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		opts.ClientID = "notifier-" + uuid.New().String()[:8]
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	logger = logger.Named("mqtt").With(zap.String("broker", broker))

	co := mqtt.NewClientOptions()
	co.AddBroker(broker)
	co.SetClientID(opts.ClientID)
	if u.User != nil {
		co.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			co.SetPassword(pw)
		}
	}
	co.SetKeepAlive(30 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	co.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected")
	})

	client := clientFactory(co)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}

	return &MQTTDriver{client: client, qos: opts.QoS, logger: logger}, nil
}

func brokerURL(u *url.URL) (string, error) {
	scheme := u.Scheme
	switch scheme {
	case "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	case "tcp", "ssl", "ws", "wss":
	default:
		return "", fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("mqtt: transport url has no host")
	}
	broker := scheme + "://" + u.Host
	if scheme == "ws" || scheme == "wss" {
		broker += u.Path
	}
	return broker, nil
}

func (d *MQTTDriver) Name() string { return "mqtt" }

func (d *MQTTDriver) Send(ctx context.Context, topic string, n *events.Notification) error {
	if !d.client.IsConnected() {
		return ErrNotConnected
	}
	body, err := n.Marshal()
	if err != nil {
		return fmt.Errorf("mqtt: marshal notification: %w", err)
	}

	token := d.client.Publish(topic, d.qos, false, body)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *MQTTDriver) Close() error {
	if d.client.IsConnected() {
		d.client.Disconnect(250)
	}
	return nil
}
