// Package capability names the controllable and readable headset features and
// describes their value domains.
package capability

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ID names a capability.
type ID string

const (
	Battery           ID = "battery"
	NoiseCancellation ID = "noiseCancellation"
	SelfVoice         ID = "selfVoice"
	AutoOff           ID = "autoOff"
	Language          ID = "language"
	VoicePrompts      ID = "voicePrompts"
	PairedDevices     ID = "pairedDevices"
	ButtonAction      ID = "buttonAction"
	AmbientSound      ID = "ambientSound"
	EqualizerPreset   ID = "equalizerPresets"
)

// All lists every capability in presentation order.
var All = []ID{
	Battery,
	NoiseCancellation,
	SelfVoice,
	AutoOff,
	Language,
	VoicePrompts,
	PairedDevices,
	ButtonAction,
	AmbientSound,
	EqualizerPreset,
}

// Parse resolves a capability id, accepting case-insensitive names.
func Parse(s string) (ID, bool) {
	for _, id := range All {
		if strings.EqualFold(string(id), s) {
			return id, true
		}
	}
	return "", false
}

// ReadOnly reports whether the capability can only be read.
func (id ID) ReadOnly() bool {
	return id == Battery || id == PairedDevices
}

// DisplayName returns the default user-facing name.
func (id ID) DisplayName() string {
	switch id {
	case Battery:
		return "Battery"
	case NoiseCancellation:
		return "Noise Cancellation"
	case SelfVoice:
		return "Self Voice"
	case AutoOff:
		return "Auto Off"
	case Language:
		return "Language"
	case VoicePrompts:
		return "Voice Prompts"
	case PairedDevices:
		return "Paired Devices"
	case ButtonAction:
		return "Action Button"
	case AmbientSound:
		return "Ambient Sound"
	case EqualizerPreset:
		return "Equalizer"
	default:
		return string(id)
	}
}

// Kind is the shape of a capability value.
type Kind uint8

const (
	KindDiscrete Kind = iota
	KindContinuous
	KindBoolean
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDiscrete:
		return "discrete"
	case KindContinuous:
		return "continuous"
	case KindBoolean:
		return "boolean"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// ValueType describes the domain of a capability value.
//
// Discrete values are strings from Options. Continuous values are ints in
// [Min, Max] on Step. Booleans are bool. Text values are strings or, for list
// capabilities such as paired devices, []string.
type ValueType struct {
	Kind    Kind     `yaml:"kind"`
	Options []string `yaml:"options,omitempty"`
	Min     int      `yaml:"min,omitempty"`
	Max     int      `yaml:"max,omitempty"`
	Step    int      `yaml:"step,omitempty"`
}

// Discrete returns a discrete value type over options.
func Discrete(options ...string) ValueType {
	return ValueType{Kind: KindDiscrete, Options: options}
}

// Continuous returns a continuous value type.
func Continuous(min, max, step int) ValueType {
	return ValueType{Kind: KindContinuous, Min: min, Max: max, Step: step}
}

// Boolean returns a boolean value type.
func Boolean() ValueType { return ValueType{Kind: KindBoolean} }

// Text returns a text value type.
func Text() ValueType { return ValueType{Kind: KindText} }

// Validate checks v against the domain and returns it normalised.
func (vt ValueType) Validate(v any) (any, error) {
	switch vt.Kind {
	case KindDiscrete:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected option, got %T", v)
		}
		for _, opt := range vt.Options {
			if strings.EqualFold(opt, s) {
				return opt, nil
			}
		}
		return nil, fmt.Errorf("%q is not one of %s", s, strings.Join(vt.Options, ", "))
	case KindContinuous:
		n, ok := toInt(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		if n < vt.Min || n > vt.Max {
			return nil, fmt.Errorf("%d is outside %d..%d", n, vt.Min, vt.Max)
		}
		if vt.Step > 1 && (n-vt.Min)%vt.Step != 0 {
			return nil, fmt.Errorf("%d is not a multiple of step %d", n, vt.Step)
		}
		return n, nil
	case KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case KindText:
		switch t := v.(type) {
		case string:
			return t, nil
		case []string:
			return slices.Clone(t), nil
		}
		return nil, fmt.Errorf("expected text, got %T", v)
	}
	return nil, fmt.Errorf("unknown value kind %d", vt.Kind)
}

// ParseValue converts user input text into a value of this type.
func (vt ValueType) ParseValue(s string) (any, error) {
	switch vt.Kind {
	case KindContinuous:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("expected number: %w", err)
		}
		return vt.Validate(n)
	case KindBoolean:
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "on", "true", "yes", "1":
			return true, nil
		case "off", "false", "no", "0":
			return false, nil
		}
		return nil, fmt.Errorf("expected on/off, got %q", s)
	default:
		return vt.Validate(strings.TrimSpace(s))
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Config describes one capability as offered by a plugin.
type Config struct {
	ID          ID
	ValueType   ValueType
	DisplayName string
	Supported   bool
	Metadata    map[string]string
}

// NewConfig returns a supported config with the default display name.
func NewConfig(id ID, vt ValueType) Config {
	return Config{
		ID:          id,
		ValueType:   vt,
		DisplayName: id.DisplayName(),
		Supported:   true,
	}
}
