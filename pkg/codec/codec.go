package codec

import (
	"fmt"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/fault"
)

// Version identifies a protocol family and generation.
type Version uint8

const (
	VersionUnknown Version = iota
	BMAPv1
	BMAPv2
	MDRv1
	MDRv2
)

// String returns the version tag used in configuration and bundles.
func (v Version) String() string {
	switch v {
	case BMAPv1:
		return "bmap-v1"
	case BMAPv2:
		return "bmap-v2"
	case MDRv1:
		return "mdr-v1"
	case MDRv2:
		return "mdr-v2"
	default:
		return "unknown"
	}
}

// ParseVersion resolves a version tag.
func ParseVersion(s string) (Version, error) {
	for _, v := range []Version{BMAPv1, BMAPv2, MDRv1, MDRv2} {
		if v.String() == s {
			return v, nil
		}
	}
	return VersionUnknown, fmt.Errorf("unknown codec version %q", s)
}

// Codec converts capability operations to and from wire frames.
// A Codec instance belongs to one plugin connection; implementations with
// per-command state (sequence numbers) are safe for concurrent use.
type Codec interface {
	// Version returns the protocol generation.
	Version() Version

	// Supports reports whether the protocol has a command for the capability.
	Supports(id capability.ID) bool

	// EncodeQuery builds a frame reading the capability.
	EncodeQuery(id capability.ID) ([]byte, error)

	// Encode builds a frame writing value v.
	Encode(id capability.ID, v any) ([]byte, error)

	// Decode parses a response. It never fails; see the package documentation.
	Decode(id capability.ID, frame []byte) (any, *Diagnostic)

	// ResponsePrefix returns the leading bytes identifying the response to a
	// command for id, or nil when responses cannot be recognised by prefix.
	ResponsePrefix(id capability.ID) []byte
}

// ReadBeforeWriter is implemented by codecs whose set frames carry state
// shared between capabilities. Before encoding id, callers read it when
// ReadBeforeWrite(id) is true so the codec learns the current device state.
type ReadBeforeWriter interface {
	ReadBeforeWrite(id capability.ID) bool
}

// New returns a fresh codec for version v.
func New(v Version) (Codec, error) {
	switch v {
	case BMAPv1, BMAPv2:
		return NewBMAP(v), nil
	case MDRv1, MDRv2:
		return NewMDR(v), nil
	default:
		return nil, fault.Newf(fault.KindValidationFailed, "unsupported codec version %s", v)
	}
}

// Diagnostic explains why a response decoded to a default value.
type Diagnostic struct {
	Capability capability.ID
	Kind       fault.Kind
	Reason     string
	Frame      []byte
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Capability, d.Reason)
}

// Err converts the diagnostic into a classified error.
func (d *Diagnostic) Err() error {
	if d == nil {
		return nil
	}
	return fault.New(d.Kind, d.Error())
}

func diag(id capability.ID, kind fault.Kind, frame []byte, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Capability: id,
		Kind:       kind,
		Reason:     fmt.Sprintf(format, args...),
		Frame:      append([]byte(nil), frame...),
	}
}

func unsupported(id capability.ID, v Version) error {
	return fault.Newf(fault.KindUnsupportedCommand, "%s is not available in %s", id.DisplayName(), v)
}

func invalid(id capability.ID, v any) error {
	return fault.Newf(fault.KindInvalidParameter, "%v is not a valid %s value", v, id.DisplayName())
}

// ByteSum returns the sum of data modulo 256.
func ByteSum(data ...[]byte) byte {
	var sum byte
	for _, d := range data {
		for _, b := range d {
			sum += b
		}
	}
	return sum
}

// Default returns the value a capability decodes to when its response is unusable.
func Default(id capability.ID) any {
	switch id {
	case capability.Battery:
		return 0
	case capability.NoiseCancellation:
		return "off"
	case capability.SelfVoice:
		return "off"
	case capability.AutoOff:
		return "never"
	case capability.Language:
		return "en"
	case capability.VoicePrompts:
		return false
	case capability.PairedDevices:
		return []string{}
	case capability.ButtonAction:
		return "noiseCancellation"
	case capability.AmbientSound:
		return 0
	case capability.EqualizerPreset:
		return "off"
	default:
		return nil
	}
}
