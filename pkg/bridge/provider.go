package bridge

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/match"
)

// Bridge is one known bridge.
type Bridge struct {
	// Instance is the mDNS instance name, or a configured name.
	Instance string

	// Host and Port locate the bridge.
	Host string
	Port int

	// Channels lists the transport kinds the bridge can open.
	Channels []channel.Type

	// Devices lists the addresses the bridge reaches. Empty means any.
	Devices []string
}

// Endpoint returns host:port.
func (b *Bridge) Endpoint() string {
	return Endpoint(b.Host, b.Port)
}

// Serves reports whether the bridge reaches dev.
func (b *Bridge) Serves(dev *match.ObservedDevice) bool {
	if len(b.Devices) == 0 {
		return true
	}
	for _, addr := range b.Devices {
		if strings.EqualFold(addr, dev.Address) {
			return true
		}
	}
	return false
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// DialTimeout is passed to every Transport.
	DialTimeout time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Provider implements channel.Provider over the known bridges. It is safe
// for concurrent use.
type Provider struct {
	config ProviderConfig
	logger *slog.Logger

	mu      sync.RWMutex
	bridges map[string]*Bridge
}

var _ channel.Provider = (*Provider)(nil)

// NewProvider creates a provider with no bridges.
func NewProvider(cfg ProviderConfig) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{
		config:  cfg,
		logger:  logger,
		bridges: make(map[string]*Bridge),
	}
}

// Add adds or replaces a bridge. It reports whether the bridge is new.
func (p *Provider) Add(b *Bridge) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, found := p.bridges[b.Instance]
	p.bridges[b.Instance] = b
	if !found {
		p.logger.Info("bridge added", "instance", b.Instance, "endpoint", b.Endpoint())
	}
	return !found
}

// Remove forgets a bridge.
func (p *Provider) Remove(instance string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.bridges[instance]; ok {
		delete(p.bridges, instance)
		p.logger.Info("bridge removed", "instance", instance)
	}
}

// Bridges returns the known bridges ordered by instance name.
func (p *Provider) Bridges() []*Bridge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Bridge, 0, len(p.bridges))
	for _, b := range p.bridges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

// Available returns the union of channel kinds offered by bridges that
// reach dev.
func (p *Provider) Available(dev *match.ObservedDevice) []channel.Type {
	var out []channel.Type
	for _, b := range p.Bridges() {
		if !b.Serves(dev) {
			continue
		}
		for _, t := range b.Channels {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Transport returns an unopened transport through the first bridge that
// reaches dev with kind t.
func (p *Provider) Transport(dev *match.ObservedDevice, t channel.Type, cfg *channel.CharacteristicConfig) (channel.Transport, error) {
	for _, b := range p.Bridges() {
		if !b.Serves(dev) || !slices.Contains(b.Channels, t) {
			continue
		}
		req := OpenRequest{Address: dev.Address, Channel: t.String()}
		if cfg != nil {
			req.Service, req.Write, req.Notify = cfg.Service, cfg.Write, cfg.Notify
		}
		return NewTransport(TransportConfig{
			Endpoint:    b.Endpoint(),
			Request:     req,
			DialTimeout: p.config.DialTimeout,
			Logger:      p.config.Logger,
		}), nil
	}
	return nil, fmt.Errorf("no bridge reaches %s over %s", dev.Address, t)
}
