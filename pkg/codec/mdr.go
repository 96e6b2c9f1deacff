package codec

import (
	"sync"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/fault"
)

// MDR framing bytes.
const (
	mdrStart       = 0x3E
	mdrEnd         = 0x3C
	mdrDataCommand = 0x0C
)

// Feature flag carried by v2 frames.
const (
	mdrFlagGet = 0x00
	mdrFlagSet = 0x01
)

// mdrAmbientMax is the highest ambient sound level.
const mdrAmbientMax = 20

type mdrCommand struct {
	get   byte
	reply byte
	set   byte
	sub   byte
}

var mdrCommands = map[capability.ID]mdrCommand{
	capability.Battery:           {get: 0x10, reply: 0x11, sub: 0x00},
	capability.NoiseCancellation: {get: 0x66, reply: 0x67, set: 0x68, sub: 0x02},
	capability.AmbientSound:      {get: 0x66, reply: 0x67, set: 0x68, sub: 0x03},
	capability.EqualizerPreset:   {get: 0x56, reply: 0x57, set: 0x58, sub: 0x00},
	capability.AutoOff:           {get: 0x26, reply: 0x27, set: 0x28, sub: 0x05},
	capability.VoicePrompts:      {get: 0x46, reply: 0x47, set: 0x48, sub: 0x01},
	capability.ButtonAction:      {get: 0xF6, reply: 0xF7, set: 0xF8, sub: 0x0C},
}

// MDR encodes and decodes the Sony MDR protocol. Each instance owns a sequence
// counter that advances once per encoded frame and wraps at 256.
type MDR struct {
	version Version

	mu  sync.Mutex
	seq byte
}

// NewMDR creates an MDR codec for v (MDRv1 or MDRv2).
func NewMDR(v Version) *MDR {
	return &MDR{version: v}
}

// Version returns the protocol generation.
func (c *MDR) Version() Version { return c.version }

// Supports reports whether MDR has a command for id.
func (c *MDR) Supports(id capability.ID) bool {
	_, ok := mdrCommands[id]
	return ok
}

// Sequence returns the number the next frame will carry.
func (c *MDR) Sequence() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// EncodeQuery builds a get frame for id.
func (c *MDR) EncodeQuery(id capability.ID) ([]byte, error) {
	cmd, ok := mdrCommands[id]
	if !ok {
		return nil, unsupported(id, c.version)
	}
	return c.frame(cmd.get, cmd.sub, mdrFlagGet, nil), nil
}

// Encode builds a set frame writing v.
func (c *MDR) Encode(id capability.ID, v any) ([]byte, error) {
	cmd, ok := mdrCommands[id]
	if !ok || id.ReadOnly() {
		return nil, unsupported(id, c.version)
	}

	var code byte
	var err error
	switch id {
	case capability.NoiseCancellation:
		code, err = encodeString(mdrNoiseCancellation, id, v)
	case capability.EqualizerPreset:
		code, err = encodeString(mdrEqualizer, id, v)
	case capability.AutoOff:
		code, err = encodeString(mdrAutoOff, id, v)
	case capability.ButtonAction:
		code, err = encodeString(mdrButtonAction, id, v)
	case capability.VoicePrompts:
		on, isBool := v.(bool)
		if !isBool {
			return nil, invalid(id, v)
		}
		if on {
			code = 0x01
		}
	case capability.AmbientSound:
		level, isInt := v.(int)
		if !isInt || level < 0 || level > mdrAmbientMax {
			return nil, invalid(id, v)
		}
		code = byte(level)
	}
	if err != nil {
		return nil, err
	}
	return c.frame(cmd.set, cmd.sub, mdrFlagSet, []byte{code}), nil
}

func (c *MDR) frame(category, sub, flag byte, payload []byte) []byte {
	body := make([]byte, 0, 3+len(payload))
	body = append(body, category, sub)
	if c.version == MDRv2 {
		body = append(body, flag)
	}
	body = append(body, payload...)

	c.mu.Lock()
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	header := []byte{mdrDataCommand, seq, byte(len(body))}
	out := make([]byte, 0, len(body)+6)
	out = append(out, mdrStart)
	out = append(out, header...)
	out = append(out, body...)
	out = append(out, ByteSum(header, body), mdrEnd)
	return out
}

// ResponsePrefix returns the start byte and data type shared by every reply.
func (c *MDR) ResponsePrefix(id capability.ID) []byte {
	if !c.Supports(id) {
		return nil
	}
	return []byte{mdrStart, mdrDataCommand}
}

// Decode parses a reply frame for id.
func (c *MDR) Decode(id capability.ID, frame []byte) (any, *Diagnostic) {
	cmd, ok := mdrCommands[id]
	if !ok {
		return Default(id), diag(id, fault.KindUnsupportedCommand, frame, "no command in %s", c.version)
	}

	// start, dataType, seq, length, ..., checksum, end
	if len(frame) < 6 {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "frame too short (%d bytes)", len(frame))
	}
	if frame[0] != mdrStart || frame[len(frame)-1] != mdrEnd {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "missing frame delimiters")
	}
	n := int(frame[3])
	if len(frame) != n+6 {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "frame declares %d bytes, has %d", n, len(frame)-6)
	}
	body := frame[4 : 4+n]
	if want, got := ByteSum(frame[1:4], body), frame[4+n]; want != got {
		return Default(id), diag(id, fault.KindChecksumMismatch, frame, "checksum 0x%02X, expected 0x%02X", got, want)
	}

	offset := 2
	if c.version == MDRv2 {
		offset = 3
	}
	if len(body) < offset+1 {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "payload too short (%d bytes)", len(body))
	}
	if body[0] != cmd.reply || body[1] != cmd.sub {
		return Default(id), diag(id, fault.KindUnexpectedResponse, frame, "reply 0x%02X/0x%02X", body[0], body[1])
	}
	value := body[offset]

	switch id {
	case capability.Battery:
		if value > 100 {
			return Default(id), diag(id, fault.KindInvalidResponse, frame, "battery level %d", value)
		}
		return int(value), nil
	case capability.NoiseCancellation:
		return decodeString(mdrNoiseCancellation, id, value, frame)
	case capability.AmbientSound:
		if value > mdrAmbientMax {
			return Default(id), diag(id, fault.KindInvalidResponse, frame, "ambient level %d", value)
		}
		return int(value), nil
	case capability.EqualizerPreset:
		return decodeString(mdrEqualizer, id, value, frame)
	case capability.AutoOff:
		return decodeString(mdrAutoOff, id, value, frame)
	case capability.VoicePrompts:
		return value == 0x01, nil
	case capability.ButtonAction:
		return decodeString(mdrButtonAction, id, value, frame)
	}
	return Default(id), diag(id, fault.KindUnsupportedCommand, frame, "no decoder")
}
