package codec

import (
	"fmt"
	"sync"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/fault"
)

// BMAP operators.
const (
	bmapOpGet    = 0x01
	bmapOpSet    = 0x02
	bmapOpStatus = 0x03
	bmapOpError  = 0x04
)

// bmapHeaderSize is functionBlock, function, operator, length.
const bmapHeaderSize = 4

// Action button addressing used by the button action command.
const (
	bmapButtonID    = 0x10
	bmapButtonEvent = 0x04
)

type bmapCommand struct {
	block    byte
	function byte
}

var bmapCommands = map[capability.ID]bmapCommand{
	capability.Battery:           {0x02, 0x02},
	capability.NoiseCancellation: {0x01, 0x06},
	capability.SelfVoice:         {0x01, 0x0B},
	capability.AutoOff:           {0x01, 0x04},
	capability.Language:          {0x01, 0x03},
	capability.VoicePrompts:      {0x01, 0x03},
	capability.PairedDevices:     {0x04, 0x04},
	capability.ButtonAction:      {0x01, 0x09},
}

// BMAP encodes and decodes the Bose BMAP protocol.
//
// Language and voice prompts share one byte on the wire; the codec remembers the
// last byte it decoded so that changing one keeps the other. Until that byte
// has been read, ReadBeforeWrite asks the caller to query it first.
type BMAP struct {
	version Version

	mu     sync.Mutex
	prompt byte
	known  bool
}

var _ ReadBeforeWriter = (*BMAP)(nil)

// NewBMAP creates a BMAP codec for v (BMAPv1 or BMAPv2).
func NewBMAP(v Version) *BMAP {
	return &BMAP{
		version: v,
		prompt:  0x21 | bmapPromptsOn,
	}
}

// Version returns the protocol generation.
func (c *BMAP) Version() Version { return c.version }

// Supports reports whether BMAP has a command for id.
func (c *BMAP) Supports(id capability.ID) bool {
	_, ok := bmapCommands[id]
	return ok
}

// ReadBeforeWrite reports whether id must be read before it can be encoded
// without overwriting state shared with another capability.
func (c *BMAP) ReadBeforeWrite(id capability.ID) bool {
	if id != capability.Language && id != capability.VoicePrompts {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.known
}

// EncodeQuery builds a get frame for id.
func (c *BMAP) EncodeQuery(id capability.ID) ([]byte, error) {
	cmd, ok := bmapCommands[id]
	if !ok {
		return nil, unsupported(id, c.version)
	}
	return c.frame(cmd, bmapOpGet, nil), nil
}

// Encode builds a set frame writing v.
func (c *BMAP) Encode(id capability.ID, v any) ([]byte, error) {
	cmd, ok := bmapCommands[id]
	if !ok || id.ReadOnly() {
		return nil, unsupported(id, c.version)
	}

	var payload []byte
	switch id {
	case capability.NoiseCancellation:
		code, err := encodeString(bmapNoiseCancellation, id, v)
		if err != nil {
			return nil, err
		}
		payload = []byte{code}

	case capability.SelfVoice:
		code, err := encodeString(bmapSelfVoice, id, v)
		if err != nil {
			return nil, err
		}
		payload = []byte{0x01, code}

	case capability.AutoOff:
		code, err := encodeString(bmapAutoOff, id, v)
		if err != nil {
			return nil, err
		}
		payload = []byte{code}

	case capability.Language:
		code, err := encodeString(bmapLanguage, id, v)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.prompt = code | (c.prompt & bmapPromptsOn)
		payload = []byte{c.prompt}
		c.mu.Unlock()

	case capability.VoicePrompts:
		on, isBool := v.(bool)
		if !isBool {
			return nil, invalid(id, v)
		}
		c.mu.Lock()
		c.prompt &^= bmapPromptsOn
		if on {
			c.prompt |= bmapPromptsOn
		}
		payload = []byte{c.prompt}
		c.mu.Unlock()

	case capability.ButtonAction:
		code, err := encodeString(bmapButtonAction, id, v)
		if err != nil {
			return nil, err
		}
		payload = []byte{bmapButtonID, bmapButtonEvent, code}
	}

	return c.frame(cmd, bmapOpSet, payload), nil
}

func (c *BMAP) frame(cmd bmapCommand, op byte, payload []byte) []byte {
	v1 := make([]byte, 0, bmapHeaderSize+len(payload))
	v1 = append(v1, cmd.block, cmd.function, op, byte(len(payload)))
	v1 = append(v1, payload...)
	if c.version != BMAPv2 {
		return v1
	}
	out := make([]byte, 0, len(v1)+2)
	out = append(out, byte(len(v1)))
	out = append(out, v1...)
	return append(out, BMAPChecksum(v1))
}

// BMAPChecksum is the BMAP v2 checksum: (256 - (sum mod 256)) mod 256.
func BMAPChecksum(payload []byte) byte {
	sum := 0
	for _, b := range payload {
		sum += int(b)
	}
	return byte((256 - sum%256) % 256)
}

// ResponsePrefix returns [functionBlock, function] for v1. v2 responses start
// with a length byte that depends on the reply, so they are not filtered.
func (c *BMAP) ResponsePrefix(id capability.ID) []byte {
	cmd, ok := bmapCommands[id]
	if !ok || c.version == BMAPv2 {
		return nil
	}
	return []byte{cmd.block, cmd.function}
}

// Decode parses a status response for id.
func (c *BMAP) Decode(id capability.ID, frame []byte) (any, *Diagnostic) {
	cmd, ok := bmapCommands[id]
	if !ok {
		return Default(id), diag(id, fault.KindUnsupportedCommand, frame, "no command in %s", c.version)
	}

	body := frame
	if c.version == BMAPv2 {
		if len(frame) < 2 {
			return Default(id), diag(id, fault.KindInvalidResponse, frame, "frame too short (%d bytes)", len(frame))
		}
		n := int(frame[0])
		if len(frame) < n+2 {
			return Default(id), diag(id, fault.KindInvalidResponse, frame, "frame declares %d bytes, has %d", n, len(frame)-2)
		}
		body = frame[1 : 1+n]
		if want, got := BMAPChecksum(body), frame[1+n]; want != got {
			return Default(id), diag(id, fault.KindChecksumMismatch, frame, "checksum 0x%02X, expected 0x%02X", got, want)
		}
	}

	if len(body) < bmapHeaderSize {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "frame too short (%d bytes)", len(body))
	}
	if body[0] != cmd.block || body[1] != cmd.function {
		return Default(id), diag(id, fault.KindUnexpectedResponse, frame, "response for 0x%02X/0x%02X", body[0], body[1])
	}
	switch body[2] {
	case bmapOpStatus:
	case bmapOpError:
		return Default(id), diag(id, fault.KindCommandRejected, frame, "device returned error")
	default:
		return Default(id), diag(id, fault.KindUnexpectedResponse, frame, "operator 0x%02X", body[2])
	}

	n := int(body[3])
	if len(body) < bmapHeaderSize+n {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "payload declares %d bytes, has %d", n, len(body)-bmapHeaderSize)
	}
	return c.decodePayload(id, body[bmapHeaderSize:bmapHeaderSize+n], frame)
}

func (c *BMAP) decodePayload(id capability.ID, p, frame []byte) (any, *Diagnostic) {
	need := 1
	switch id {
	case capability.SelfVoice:
		need = 2
	case capability.ButtonAction:
		need = 3
	case capability.PairedDevices:
		need = 0
	}
	if len(p) < need {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "payload too short (%d bytes)", len(p))
	}

	switch id {
	case capability.Battery:
		if p[0] > 100 {
			return Default(id), diag(id, fault.KindInvalidResponse, frame, "battery level %d", p[0])
		}
		return int(p[0]), nil

	case capability.NoiseCancellation:
		return decodeString(bmapNoiseCancellation, id, p[0], frame)

	case capability.SelfVoice:
		if p[0] == 0 {
			return "off", nil
		}
		return decodeString(bmapSelfVoice, id, p[1], frame)

	case capability.AutoOff:
		return decodeString(bmapAutoOff, id, p[0], frame)

	case capability.Language:
		c.setPrompt(p[0])
		return decodeString(bmapLanguage, id, p[0]&^bmapPromptsOn, frame)

	case capability.VoicePrompts:
		c.setPrompt(p[0])
		return p[0]&bmapPromptsOn != 0, nil

	case capability.ButtonAction:
		return decodeString(bmapButtonAction, id, p[2], frame)

	case capability.PairedDevices:
		if len(p) == 0 {
			return []string{}, nil
		}
		addrs := p[1:]
		if len(addrs)%6 != 0 {
			return Default(id), diag(id, fault.KindInvalidResponse, frame, "address list of %d bytes", len(addrs))
		}
		out := make([]string, 0, len(addrs)/6)
		for i := 0; i < len(addrs); i += 6 {
			a := addrs[i : i+6]
			out = append(out, fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5]))
		}
		return out, nil
	}
	return Default(id), diag(id, fault.KindUnsupportedCommand, frame, "no decoder")
}

func (c *BMAP) setPrompt(b byte) {
	c.mu.Lock()
	c.prompt, c.known = b, true
	c.mu.Unlock()
}

func encodeString(t codeTable[string], id capability.ID, v any) (byte, error) {
	s, ok := v.(string)
	if !ok {
		return 0, invalid(id, v)
	}
	code, ok := t.encode(s)
	if !ok {
		return 0, invalid(id, v)
	}
	return code, nil
}

func decodeString(t codeTable[string], id capability.ID, code byte, frame []byte) (any, *Diagnostic) {
	v, ok := t.decode(code)
	if !ok {
		return Default(id), diag(id, fault.KindInvalidResponse, frame, "unknown code 0x%02X", code)
	}
	return v, nil
}
