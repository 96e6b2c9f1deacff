package simulator

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/match"
)

// Provider hands out simulated headsets as transports.
// It implements channel.Provider.
type Provider struct {
	mu       sync.RWMutex
	headsets map[string]*Headset
}

// NewProvider creates a provider serving the given headsets.
func NewProvider(headsets ...*Headset) *Provider {
	p := &Provider{headsets: make(map[string]*Headset)}
	for _, h := range headsets {
		p.Add(h)
	}
	return p
}

// Add makes a headset reachable.
func (p *Provider) Add(h *Headset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.headsets[strings.ToUpper(h.config.Device.Address)] = h
}

// Remove makes a headset unreachable.
func (p *Provider) Remove(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.headsets, strings.ToUpper(address))
}

// Headset returns the headset at address.
func (p *Provider) Headset(address string) (*Headset, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.headsets[strings.ToUpper(address)]
	return h, ok
}

// Devices returns discovery records for every headset, ordered by address.
func (p *Provider) Devices() []*match.ObservedDevice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*match.ObservedDevice, 0, len(p.headsets))
	for _, h := range p.headsets {
		out = append(out, h.Device())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Available returns the channel types the addressed headset offers.
func (p *Provider) Available(dev *match.ObservedDevice) []channel.Type {
	h, ok := p.Headset(dev.Address)
	if !ok {
		return nil
	}
	return h.Channels()
}

// Transport returns the headset itself.
func (p *Provider) Transport(dev *match.ObservedDevice, t channel.Type, _ *channel.CharacteristicConfig) (channel.Transport, error) {
	h, ok := p.Headset(dev.Address)
	if !ok {
		return nil, fmt.Errorf("no simulated headset at %s", dev.Address)
	}
	for _, c := range h.Channels() {
		if c == t {
			return h, nil
		}
	}
	return nil, fmt.Errorf("simulated headset does not offer %s", t)
}

var _ channel.Provider = (*Provider)(nil)

// Preset is a ready-made headset description.
type Preset struct {
	Name    string
	Version codec.Version
	Device  match.ObservedDevice
}

// Presets lists one simulated headset per built-in model.
var Presets = []Preset{
	{"qc35", codec.BMAPv1, match.ObservedDevice{
		Address: "04:52:C7:00:00:35", Name: "Bose QC35", VendorID: "0x009E", ProductID: "0x400C",
		ServiceUUIDs: []string{"FEBE"},
	}},
	{"qc35ii", codec.BMAPv1, match.ObservedDevice{
		Address: "04:52:C7:00:00:36", Name: "Bose QC35 II", VendorID: "0x009E", ProductID: "0x4020",
		ServiceUUIDs: []string{"FEBE"},
	}},
	{"nc700", codec.BMAPv2, match.ObservedDevice{
		Address: "4C:87:5D:00:07:00", Name: "Bose NC 700 HP", VendorID: "0x009E", ProductID: "0x4024",
		ServiceUUIDs: []string{"FEBE"},
	}},
	{"qcearbuds", codec.BMAPv2, match.ObservedDevice{
		Address: "4C:87:5D:00:0E:B0", Name: "Bose QC Earbuds", VendorID: "0x009E", ProductID: "0x4060",
		ServiceUUIDs: []string{"FEBE"},
	}},
	{"wh1000xm3", codec.MDRv1, match.ObservedDevice{
		Address: "38:18:4C:00:00:03", Name: "WH-1000XM3", VendorID: "0x012D", ProductID: "0x0CD3",
		ServiceUUIDs: []string{"96CC203E-5068-46AD-B32D-E316F5E069BA"},
	}},
	{"wh1000xm4", codec.MDRv2, match.ObservedDevice{
		Address: "38:18:4C:00:00:04", Name: "WH-1000XM4", VendorID: "0x012D", ProductID: "0x0D58",
		ServiceUUIDs: []string{"96CC203E-5068-46AD-B32D-E316F5E069BA"},
	}},
	{"wf1000xm4", codec.MDRv2, match.ObservedDevice{
		Address: "F8:4E:17:00:00:04", Name: "WF-1000XM4", VendorID: "0x012D", ProductID: "0x0DE1",
		ServiceUUIDs: []string{"96CC203E-5068-46AD-B32D-E316F5E069BA"},
	}},
}

// FromPreset builds a headset from a named preset.
func FromPreset(name string) (*Headset, error) {
	for _, p := range Presets {
		if p.Name == name {
			return NewHeadset(HeadsetConfig{Device: p.Device, Version: p.Version}), nil
		}
	}
	return nil, fmt.Errorf("unknown simulator preset %q", name)
}
