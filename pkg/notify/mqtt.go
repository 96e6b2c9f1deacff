package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultKeepAlive         = 60 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	maxQoS                   = 2
)

// MQTT errors.
var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrInvalidTopic     = errors.New("mqtt topic is empty")
	ErrInvalidQoS       = errors.New("mqtt qos must be 0, 1 or 2")
)

// Config configures the broker connection.
type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string

	// ClientID identifies the client (default: "earlink").
	ClientID string

	Username string
	Password string

	// TopicPrefix roots every topic (default: "earlink").
	TopicPrefix string

	// QoS for every publish.
	QoS byte

	// ReconnectMax caps paho's reconnect backoff (default: 1m).
	ReconnectMax time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ClientID == "" {
		c.ClientID = "earlink"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "earlink"
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = time.Minute
	}
	return c
}

// Publisher sends one message without waiting for delivery.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Client is a Publisher backed by paho.
type Client struct {
	client pahomqtt.Client
	config Config
	logger *slog.Logger
}

var _ Publisher = (*Client)(nil)

func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Second)
	opts.SetMaxReconnectInterval(cfg.ReconnectMax)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(statusTopic(cfg.TopicPrefix), string(statusPayload(cfg.ClientID, "offline", "unexpected_disconnect")), 1, true)
	return opts
}

// Dial connects to the broker and publishes the online status.
func Dial(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &Client{config: cfg, logger: logger}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.logger.Info("mqtt connected", "broker", cfg.Broker)
		_ = c.Publish(statusTopic(cfg.TopicPrefix), 1, true, statusPayload(cfg.ClientID, "online", ""))
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// Publish queues a message. Delivery errors are logged.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	token := c.client.Publish(topic, qos, retained, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

// Close publishes the offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.client.IsConnected() {
		token := c.client.Publish(statusTopic(c.config.TopicPrefix), 1, true,
			statusPayload(c.config.ClientID, "offline", "shutdown"))
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
