package settings

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/earlink/earlink-go/pkg/capability"
)

// SchemaVersion is the current record format version.
const SchemaVersion = 1

// MaxKeyLength bounds sanitized device ids.
const MaxKeyLength = 100

// DeviceSettings is the persisted configuration of one device. Nil fields
// were not captured and are not restored.
type DeviceSettings struct {
	// Version is the record format version.
	Version int `json:"version"`

	// DeviceID is the device the record belongs to.
	DeviceID string `json:"deviceId"`

	// LastModified is stamped by Store.Save.
	LastModified time.Time `json:"lastModified"`

	NoiseCancellation *string `json:"noiseCancellation,omitempty"`
	SelfVoice         *string `json:"selfVoice,omitempty"`
	AutoOff           *string `json:"autoOff,omitempty"`
	Language          *string `json:"language,omitempty"`
	VoicePrompts      *bool   `json:"voicePrompts,omitempty"`
	ButtonAction      *string `json:"buttonAction,omitempty"`
	AmbientSound      *int    `json:"ambientSound,omitempty"`
	EqualizerPreset   *string `json:"equalizerPresets,omitempty"`

	// Extensions holds values this version does not model.
	Extensions map[string]string `json:"extensions,omitempty"`
}

// Equal reports whether a and b hold the same values, ignoring
// LastModified.
func (s *DeviceSettings) Equal(o *DeviceSettings) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Version != o.Version || s.DeviceID != o.DeviceID {
		return false
	}
	for _, f := range fields {
		a, aok := f.get(s)
		b, bok := f.get(o)
		if aok != bok || a != b {
			return false
		}
	}
	if len(s.Extensions) != len(o.Extensions) {
		return false
	}
	for k, v := range s.Extensions {
		if w, ok := o.Extensions[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Value returns the stored value for id.
func (s *DeviceSettings) Value(id capability.ID) (any, bool) {
	for _, f := range fields {
		if f.id == id {
			return f.get(s)
		}
	}
	return nil, false
}

// SetValue stores v for id. It reports false when id is not persisted or v
// has the wrong type.
func (s *DeviceSettings) SetValue(id capability.ID, v any) bool {
	for _, f := range fields {
		if f.id == id {
			return f.set(s, v)
		}
	}
	return false
}

// Persisted lists the capabilities a record can hold, in restore order.
func Persisted() []capability.ID {
	out := make([]capability.ID, len(fields))
	for i, f := range fields {
		out[i] = f.id
	}
	return out
}

type field struct {
	id  capability.ID
	get func(*DeviceSettings) (any, bool)
	set func(*DeviceSettings, any) bool
}

func stringField(id capability.ID, p func(*DeviceSettings) **string) field {
	return field{
		id: id,
		get: func(s *DeviceSettings) (any, bool) {
			if v := *p(s); v != nil {
				return *v, true
			}
			return nil, false
		},
		set: func(s *DeviceSettings, v any) bool {
			str, ok := v.(string)
			if ok {
				*p(s) = &str
			}
			return ok
		},
	}
}

var fields = []field{
	stringField(capability.NoiseCancellation, func(s *DeviceSettings) **string { return &s.NoiseCancellation }),
	stringField(capability.SelfVoice, func(s *DeviceSettings) **string { return &s.SelfVoice }),
	stringField(capability.AutoOff, func(s *DeviceSettings) **string { return &s.AutoOff }),
	stringField(capability.Language, func(s *DeviceSettings) **string { return &s.Language }),
	{
		id: capability.VoicePrompts,
		get: func(s *DeviceSettings) (any, bool) {
			if s.VoicePrompts != nil {
				return *s.VoicePrompts, true
			}
			return nil, false
		},
		set: func(s *DeviceSettings, v any) bool {
			b, ok := v.(bool)
			if ok {
				s.VoicePrompts = &b
			}
			return ok
		},
	},
	stringField(capability.ButtonAction, func(s *DeviceSettings) **string { return &s.ButtonAction }),
	{
		id: capability.AmbientSound,
		get: func(s *DeviceSettings) (any, bool) {
			if s.AmbientSound != nil {
				return *s.AmbientSound, true
			}
			return nil, false
		},
		set: func(s *DeviceSettings, v any) bool {
			var n int
			switch x := v.(type) {
			case int:
				n = x
			case float64:
				if x != float64(int(x)) {
					return false
				}
				n = int(x)
			default:
				return false
			}
			s.AmbientSound = &n
			return true
		},
	},
	stringField(capability.EqualizerPreset, func(s *DeviceSettings) **string { return &s.EqualizerPreset }),
}

// SanitizeID turns a device id into a storage key: path separators,
// reserved and control characters become '_', and ids longer than
// MaxKeyLength are shortened with a hash suffix so distinct ids stay
// distinct.
func SanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	key := b.String()
	if key == "" || key == "." || key == ".." {
		key = strings.Repeat("_", len(key)+1)
	}
	if len(key) <= MaxKeyLength {
		return key
	}
	sum := blake2b.Sum256([]byte(id))
	suffix := "-" + hex.EncodeToString(sum[:8])
	return truncate(key, MaxKeyLength-len(suffix)) + suffix
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
