// Package config loads the earlink YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/match"
)

// Config is the root configuration.
type Config struct {
	Log             LogConfig             `yaml:"log"`
	Capture         CaptureConfig         `yaml:"capture"`
	Settings        SettingsConfig        `yaml:"settings"`
	Plugins         PluginsConfig         `yaml:"plugins"`
	Connection      ConnectionConfig      `yaml:"connection"`
	Bridge          BridgeConfig          `yaml:"bridge"`
	MQTT            MQTTConfig            `yaml:"mqtt"`
	Characteristics CharacteristicsConfig `yaml:"characteristics"`
	Devices         []DeviceConfig        `yaml:"devices"`
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CaptureConfig configures protocol capture.
type CaptureConfig struct {
	// File is the CBOR capture path. Empty disables capture.
	File string `yaml:"file"`
}

// SettingsConfig selects the settings medium.
type SettingsConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `yaml:"backend"`

	// Path is a directory for the file backend and a database file for
	// sqlite.
	Path string `yaml:"path"`
}

// PluginsConfig configures plugin bundles.
type PluginsConfig struct {
	// Dir is watched for YAML bundles. Empty disables hot-swap.
	Dir          string        `yaml:"dir"`
	ScanInterval time.Duration `yaml:"scanInterval"`
}

// ConnectionConfig tunes the connection manager.
type ConnectionConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	BaseDelay      time.Duration `yaml:"baseDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
	CommandTimeout time.Duration `yaml:"commandTimeout"`
	PersistTimeout time.Duration `yaml:"persistTimeout"`
}

// BridgeConfig configures network bridges.
type BridgeConfig struct {
	// Browse enables mDNS discovery of bridges.
	Browse    bool           `yaml:"browse"`
	Interface string         `yaml:"interface"`
	Static    []StaticBridge `yaml:"static"`
}

// StaticBridge is a bridge known without discovery.
type StaticBridge struct {
	Name     string   `yaml:"name"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Channels []string `yaml:"channels"`
	Devices  []string `yaml:"devices"`
}

// MQTTConfig configures the notification publisher. An empty broker
// disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"clientId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicPrefix"`
	QoS         int    `yaml:"qos"`
}

// DeviceConfig describes a paired headset as the host Bluetooth stack
// reports it.
type DeviceConfig struct {
	Address      string   `yaml:"address"`
	Name         string   `yaml:"name"`
	VendorID     string   `yaml:"vendorId"`
	ProductID    string   `yaml:"productId"`
	ServiceUUIDs []string `yaml:"serviceUuids"`
}

// Observed converts the entry into a discovery record.
func (d DeviceConfig) Observed() *match.ObservedDevice {
	return &match.ObservedDevice{
		Address:      strings.ToUpper(d.Address),
		Name:         d.Name,
		VendorID:     d.VendorID,
		ProductID:    d.ProductID,
		ServiceUUIDs: d.ServiceUUIDs,
	}
}

// CharacteristicsConfig registers characteristic addressing.
type CharacteristicsConfig struct {
	// Defaults is keyed by advertised service UUID.
	Defaults map[string]channel.CharacteristicConfig `yaml:"defaults"`

	// Devices is keyed by device address.
	Devices map[string]channel.CharacteristicConfig `yaml:"devices"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Settings: SettingsConfig{Backend: "file", Path: defaultSettingsPath()},
		Plugins:  PluginsConfig{ScanInterval: 5 * time.Second},
		Connection: ConnectionConfig{
			MaxAttempts:    3,
			BaseDelay:      time.Second,
			MaxDelay:       8 * time.Second,
			CommandTimeout: 5 * time.Second,
			PersistTimeout: 3 * time.Second,
		},
		MQTT: MQTTConfig{ClientID: "earlink", TopicPrefix: "earlink", QoS: 1},
	}
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "earlink-settings"
	}
	return filepath.Join(dir, "earlink", "settings")
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var err error
	if _, e := ParseLevel(c.Log.Level); e != nil {
		err = multierr.Append(err, e)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Settings.Backend {
	case "file", "sqlite":
	default:
		err = multierr.Append(err, fmt.Errorf("settings.backend: unknown backend %q", c.Settings.Backend))
	}
	if c.Settings.Path == "" {
		err = multierr.Append(err, errors.New("settings.path: required"))
	}
	if c.Plugins.ScanInterval <= 0 {
		err = multierr.Append(err, errors.New("plugins.scanInterval: must be positive"))
	}

	conn := c.Connection
	if conn.MaxAttempts < 1 {
		err = multierr.Append(err, errors.New("connection.maxAttempts: must be at least 1"))
	}
	if conn.BaseDelay <= 0 || conn.MaxDelay <= 0 || conn.CommandTimeout <= 0 || conn.PersistTimeout <= 0 {
		err = multierr.Append(err, errors.New("connection: delays and timeouts must be positive"))
	}
	if conn.MaxDelay < conn.BaseDelay {
		err = multierr.Append(err, errors.New("connection.maxDelay: must not be below baseDelay"))
	}

	for i, b := range c.Bridge.Static {
		if b.Host == "" || b.Port <= 0 || b.Port > 65535 {
			err = multierr.Append(err, fmt.Errorf("bridge.static[%d]: host and port required", i))
		}
		for _, name := range b.Channels {
			if _, e := channel.ParseType(name); e != nil {
				err = multierr.Append(err, fmt.Errorf("bridge.static[%d]: %w", i, e))
			}
		}
	}
	for i, d := range c.Devices {
		if d.Address == "" {
			err = multierr.Append(err, fmt.Errorf("devices[%d]: address required", i))
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		err = multierr.Append(err, fmt.Errorf("mqtt.qos: %d out of range", c.MQTT.QoS))
	}
	return err
}

// ParseLevel resolves a log level name.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level: unknown level %q", s)
}

// NewLogger builds the operational logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ServiceConfigs builds the characteristic registry.
func (c *Config) ServiceConfigs() *channel.ServiceConfigs {
	s := channel.NewServiceConfigs()
	for uuid, cc := range c.Characteristics.Defaults {
		s.SetDefault(uuid, cc)
	}
	for addr, cc := range c.Characteristics.Devices {
		s.SetDevice(addr, cc)
	}
	return s
}
