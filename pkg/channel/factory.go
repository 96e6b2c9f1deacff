package channel

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/log"
	"github.com/earlink/earlink-go/pkg/match"
)

// Provider hands out transports for observed devices. It is implemented by
// the platform Bluetooth stack or a network bridge.
type Provider interface {
	// Available returns the transport kinds the device currently offers.
	Available(dev *match.ObservedDevice) []Type

	// Transport creates an unopened transport of kind t. cfg is set for
	// characteristic transports.
	Transport(dev *match.ObservedDevice, t Type, cfg *CharacteristicConfig) (Transport, error)
}

// CharacteristicConfig names the GATT service and characteristics a
// characteristic transport talks through.
type CharacteristicConfig struct {
	Service string `yaml:"service"`
	Write   string `yaml:"write"`
	Notify  string `yaml:"notify"`
}

// ServiceConfigs holds characteristic configurations registered per device
// address and defaults per advertised service UUID.
type ServiceConfigs struct {
	mu       sync.RWMutex
	devices  map[string]CharacteristicConfig
	defaults map[string]CharacteristicConfig
}

// NewServiceConfigs creates an empty configuration set.
func NewServiceConfigs() *ServiceConfigs {
	return &ServiceConfigs{
		devices:  make(map[string]CharacteristicConfig),
		defaults: make(map[string]CharacteristicConfig),
	}
}

// SetDevice registers cfg for one device address.
func (s *ServiceConfigs) SetDevice(address string, cfg CharacteristicConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[strings.ToUpper(address)] = cfg
}

// SetDefault registers cfg for every device advertising serviceUUID.
func (s *ServiceConfigs) SetDefault(serviceUUID string, cfg CharacteristicConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[match.NormalizeUUID(serviceUUID)] = cfg
}

// Lookup returns the configuration for dev: a device registration wins over
// a service default.
func (s *ServiceConfigs) Lookup(dev *match.ObservedDevice) (CharacteristicConfig, bool) {
	if s == nil || dev == nil {
		return CharacteristicConfig{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg, ok := s.devices[strings.ToUpper(dev.Address)]; ok {
		return cfg, true
	}
	for _, u := range dev.ServiceUUIDs {
		if cfg, ok := s.defaults[match.NormalizeUUID(u)]; ok {
			return cfg, true
		}
	}
	return CharacteristicConfig{}, false
}

// Reset removes every registration.
func (s *ServiceConfigs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = make(map[string]CharacteristicConfig)
	s.defaults = make(map[string]CharacteristicConfig)
}

// FactoryConfig configures a Factory.
type FactoryConfig struct {
	Provider Provider

	// Services gates the characteristic transport. Nil means none is configured.
	Services *ServiceConfigs

	// Timeout is the per-command default for built channels.
	Timeout time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Factory selects and builds channels.
type Factory struct {
	config FactoryConfig
}

// NewFactory creates a channel factory.
func NewFactory(config FactoryConfig) *Factory {
	return &Factory{config: config}
}

// Select returns the first preferred type the device offers. The
// characteristic type is skipped unless a configuration exists for dev.
func (f *Factory) Select(dev *match.ObservedDevice, preferred []Type) (Type, *CharacteristicConfig, error) {
	if f.config.Provider == nil {
		return 0, nil, fault.New(fault.KindBluetoothUnavailable, "")
	}
	available := f.config.Provider.Available(dev)
	for _, t := range preferred {
		if !containsType(available, t) {
			continue
		}
		if t != TypeCharacteristic {
			return t, nil, nil
		}
		if cfg, ok := f.config.Services.Lookup(dev); ok {
			return t, &cfg, nil
		}
	}
	return 0, nil, fault.ErrUnsupportedChannel
}

// Build creates an unopened channel for dev using the plugin's ordered
// preference list.
func (f *Factory) Build(dev *match.ObservedDevice, preferred []Type, capture *log.Session) (Channel, error) {
	t, cfg, err := f.Select(dev, preferred)
	if err != nil {
		return nil, err
	}
	transport, err := f.config.Provider.Transport(dev, t, cfg)
	if err != nil {
		return nil, fault.Wrap(fault.KindConnectionFailed, err, "")
	}
	return NewConn(dev.Address, t, transport, Config{
		Timeout: f.config.Timeout,
		Logger:  f.config.Logger,
		Capture: capture,
	}), nil
}

func containsType(types []Type, t Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
