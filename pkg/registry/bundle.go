package registry

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/plugin"
)

// Manifest describes a vendor family in a bundle file.
//
//	id: bose-extra
//	displayName: Bose
//	threshold: 51
//	channels: [stream]
//	models:
//	  - tag: qc45
//	    displayName: QuietComfort 45
//	    codec: bmap-v2
//	    capabilities:
//	      battery: {kind: continuous, min: 0, max: 100, step: 1}
//	      noiseCancellation: {kind: discrete, options: ["off", "high"]}
//	    identifiers:
//	      - vendorId: "0x009E"
//	        productId: "0x4066"
//	        confidence: 95
type Manifest struct {
	ID          string          `yaml:"id"`
	DisplayName string          `yaml:"displayName"`
	Threshold   int             `yaml:"threshold,omitempty"`
	Channels    []string        `yaml:"channels"`
	Models      []ModelManifest `yaml:"models"`
}

// ModelManifest describes one model.
type ModelManifest struct {
	Tag          string                   `yaml:"tag"`
	DisplayName  string                   `yaml:"displayName"`
	Codec        string                   `yaml:"codec"`
	Capabilities map[string]ValueManifest `yaml:"capabilities"`
	Identifiers  []IdentifierManifest     `yaml:"identifiers"`
}

// ValueManifest describes a capability value domain.
type ValueManifest struct {
	Kind    string   `yaml:"kind"`
	Options []string `yaml:"options,omitempty"`
	Min     int      `yaml:"min,omitempty"`
	Max     int      `yaml:"max,omitempty"`
	Step    int      `yaml:"step,omitempty"`
}

// IdentifierManifest describes one identifier. Signatures are hex strings.
type IdentifierManifest struct {
	VendorID     string            `yaml:"vendorId,omitempty"`
	ProductID    string            `yaml:"productId,omitempty"`
	ServiceUUIDs []string          `yaml:"serviceUuids,omitempty"`
	NamePattern  string            `yaml:"namePattern,omitempty"`
	MACPrefix    string            `yaml:"macPrefix,omitempty"`
	Confidence   int               `yaml:"confidence"`
	Signatures   map[string]string `yaml:"signatures,omitempty"`
}

// BundleLoader reads YAML manifests into data-driven plugins.
type BundleLoader struct {
	// Config is passed to every plugin built.
	Config plugin.Config
}

var _ Loader = (*BundleLoader)(nil)

// Match accepts .yaml and .yml files.
func (l *BundleLoader) Match(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads and validates the manifest at path.
func (l *BundleLoader) Load(path string) (plugin.Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fault.Wrap(fault.KindValidationFailed, err, "bundle manifest is not valid YAML")
	}
	v, err := m.Vendor()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return plugin.New(v, l.Config), nil
}

// Vendor converts the manifest.
func (m *Manifest) Vendor() (*plugin.Vendor, error) {
	v := &plugin.Vendor{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		Threshold:   m.Threshold,
	}
	for _, name := range m.Channels {
		t, err := channel.ParseType(name)
		if err != nil {
			return nil, fault.Wrap(fault.KindValidationFailed, err, "bundle "+m.ID)
		}
		v.Channels = append(v.Channels, t)
	}
	for _, mm := range m.Models {
		model, err := mm.model()
		if err != nil {
			return nil, fault.Wrap(fault.KindValidationFailed, err, "bundle "+m.ID)
		}
		v.Models = append(v.Models, model)
	}
	return v, nil
}

func (mm *ModelManifest) model() (plugin.Model, error) {
	version, err := codec.ParseVersion(mm.Codec)
	if err != nil {
		return plugin.Model{}, fmt.Errorf("model %s: %w", mm.Tag, err)
	}
	caps := make(map[capability.ID]capability.ValueType, len(mm.Capabilities))
	for name, vm := range mm.Capabilities {
		id, ok := capability.Parse(name)
		if !ok {
			return plugin.Model{}, fmt.Errorf("model %s: unknown capability %q", mm.Tag, name)
		}
		vt, err := vm.valueType()
		if err != nil {
			return plugin.Model{}, fmt.Errorf("model %s: %s: %w", mm.Tag, name, err)
		}
		caps[id] = vt
	}
	ids := make([]match.Identifier, 0, len(mm.Identifiers))
	for _, im := range mm.Identifiers {
		id, err := im.identifier()
		if err != nil {
			return plugin.Model{}, fmt.Errorf("model %s: %w", mm.Tag, err)
		}
		ids = append(ids, id)
	}
	return plugin.Model{
		Tag:          mm.Tag,
		DisplayName:  mm.DisplayName,
		Codec:        version,
		Capabilities: caps,
		Identifiers:  ids,
	}, nil
}

func (vm ValueManifest) valueType() (capability.ValueType, error) {
	switch strings.ToLower(vm.Kind) {
	case "discrete":
		return capability.Discrete(vm.Options...), nil
	case "continuous":
		if vm.Max < vm.Min {
			return capability.ValueType{}, fmt.Errorf("range [%d,%d] is empty", vm.Min, vm.Max)
		}
		return capability.Continuous(vm.Min, vm.Max, vm.Step), nil
	case "boolean":
		return capability.Boolean(), nil
	case "text":
		return capability.Text(), nil
	}
	return capability.ValueType{}, fmt.Errorf("unknown value kind %q", vm.Kind)
}

func (im IdentifierManifest) identifier() (match.Identifier, error) {
	id := match.Identifier{
		VendorID:        im.VendorID,
		ProductID:       im.ProductID,
		ServiceUUIDs:    im.ServiceUUIDs,
		NamePattern:     im.NamePattern,
		MACPrefix:       im.MACPrefix,
		ConfidenceScore: im.Confidence,
	}
	if len(im.Signatures) > 0 {
		id.Signatures = make(map[string][]byte, len(im.Signatures))
		for name, s := range im.Signatures {
			b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
			if err != nil {
				return match.Identifier{}, fmt.Errorf("signature %s: %w", name, err)
			}
			id.Signatures[name] = b
		}
	}
	return id, id.Validate()
}
