package plugin

import (
	"fmt"
	"slices"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/match"
)

// Model describes one headset model.
type Model struct {
	// Tag identifies the model within its vendor ("qc35ii").
	Tag string

	// DisplayName is the marketing name.
	DisplayName string

	// Codec is the wire protocol generation.
	Codec codec.Version

	// Capabilities maps each supported capability to its value domain.
	Capabilities map[capability.ID]capability.ValueType

	// Identifiers recognise the model. Their Model field is set to Tag.
	Identifiers []match.Identifier
}

// Supports reports whether the model declares id.
func (m *Model) Supports(id capability.ID) bool {
	_, ok := m.Capabilities[id]
	return ok
}

// Validate checks the model against its codec: every capability must have a
// command, and every discrete option must be encodable.
func (m *Model) Validate() error {
	if m.Tag == "" {
		return fault.New(fault.KindValidationFailed, "model tag is required")
	}
	c, err := codec.New(m.Codec)
	if err != nil {
		return fault.Newf(fault.KindValidationFailed, "model %s: unknown codec", m.Tag)
	}
	if len(m.Capabilities) == 0 {
		return fault.Newf(fault.KindValidationFailed, "model %s declares no capabilities", m.Tag)
	}
	for id, vt := range m.Capabilities {
		if !c.Supports(id) {
			return fault.Newf(fault.KindValidationFailed, "model %s: %s has no %s command", m.Tag, id, m.Codec)
		}
		if vt.Kind != capability.KindDiscrete {
			continue
		}
		if len(vt.Options) == 0 {
			return fault.Newf(fault.KindValidationFailed, "model %s: %s has no options", m.Tag, id)
		}
		known := codec.Options(m.Codec, id)
		for _, opt := range vt.Options {
			if !slices.Contains(known, opt) {
				return fault.Newf(fault.KindValidationFailed, "model %s: %s option %q cannot be encoded", m.Tag, id, opt)
			}
		}
	}
	for _, id := range m.Identifiers {
		if err := id.Validate(); err != nil {
			return fault.Wrap(fault.KindValidationFailed, err, fmt.Sprintf("model %s: invalid identifier", m.Tag))
		}
	}
	return nil
}

// Vendor describes a headset family served by one plugin.
type Vendor struct {
	// ID is the plugin id ("bose").
	ID string

	// DisplayName is the user-facing vendor name.
	DisplayName string

	// Threshold is the minimum match score (default: match.DefaultThreshold).
	Threshold int

	// Channels lists transport kinds in preference order.
	Channels []channel.Type

	// Models lists the supported models. The first is the fallback when a
	// device matched only vendor-wide criteria.
	Models []Model
}

// Validate checks every model.
func (v *Vendor) Validate() error {
	if v.ID == "" || v.DisplayName == "" {
		return fault.New(fault.KindValidationFailed, "vendor id and display name are required")
	}
	if len(v.Models) == 0 {
		return fault.Newf(fault.KindValidationFailed, "vendor %s declares no models", v.ID)
	}
	seen := make(map[string]bool, len(v.Models))
	for i := range v.Models {
		m := &v.Models[i]
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Tag] {
			return fault.Newf(fault.KindValidationFailed, "vendor %s: duplicate model %s", v.ID, m.Tag)
		}
		seen[m.Tag] = true
	}
	return nil
}

func (v *Vendor) threshold() int {
	if v.Threshold <= 0 {
		return match.DefaultThreshold
	}
	return v.Threshold
}

// compile returns a copy of m whose identifiers carry the model tag and
// have their name patterns compiled.
func (m Model) compile() Model {
	ids := make([]match.Identifier, len(m.Identifiers))
	for i, id := range m.Identifiers {
		id.Model = m.Tag
		ids[i] = id.Compile()
	}
	m.Identifiers = ids
	return m
}

// defaultChannels is used when a vendor declares none.
var defaultChannels = []channel.Type{channel.TypeStream}
