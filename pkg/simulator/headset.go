package simulator

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/match"
)

// Simulator errors.
var (
	ErrOpenRefused = errors.New("simulated connection refused")
	ErrNotOpen     = errors.New("simulated link is not open")
)

type register struct {
	a, b byte
}

// HeadsetConfig describes a simulated headset.
type HeadsetConfig struct {
	// Device is what discovery reports for the headset.
	Device match.ObservedDevice

	// Version selects the wire protocol.
	Version codec.Version

	// Channels lists the transport kinds the headset offers
	// (default: stream only).
	Channels []channel.Type
}

// Headset is a simulated headset. It implements channel.Transport.
type Headset struct {
	config HeadsetConfig

	mu        sync.Mutex
	open      bool
	registers map[register][]byte
	onData    func([]byte)
	onClose   func(error)
	failOpens int
	mute      bool
	corrupt   bool
	opens     int
	commands  int
	seq       byte
}

// NewHeadset creates a headset with factory-default settings.
func NewHeadset(cfg HeadsetConfig) *Headset {
	if len(cfg.Channels) == 0 {
		cfg.Channels = []channel.Type{channel.TypeStream}
	}
	h := &Headset{config: cfg}
	h.registers = defaultRegisters(cfg.Version)
	return h
}

func defaultRegisters(v codec.Version) map[register][]byte {
	switch v {
	case codec.MDRv1, codec.MDRv2:
		return map[register][]byte{
			{0x10, 0x00}: {0x46},
			{0x66, 0x02}: {0x01},
			{0x66, 0x03}: {0x0A},
			{0x56, 0x00}: {0x00},
			{0x26, 0x05}: {0x11},
			{0x46, 0x01}: {0x01},
			{0xF6, 0x0C}: {0x00},
		}
	default:
		return map[register][]byte{
			{0x02, 0x02}: {0x50},
			{0x01, 0x06}: {0x01},
			{0x01, 0x0B}: {0x01, 0x03},
			{0x01, 0x04}: {0x14},
			{0x01, 0x03}: {0xA1},
			{0x04, 0x04}: {0x01, 0x04, 0x52, 0xC7, 0x10, 0x20, 0x30},
			{0x01, 0x09}: {0x10, 0x04, 0x02},
		}
	}
}

// Device returns the discovery record for the headset.
func (h *Headset) Device() *match.ObservedDevice {
	d := h.config.Device
	return &d
}

// Version returns the simulated protocol.
func (h *Headset) Version() codec.Version { return h.config.Version }

// Channels returns the transport kinds the headset offers.
func (h *Headset) Channels() []channel.Type { return h.config.Channels }

// SetBattery sets the reported battery level.
func (h *Headset) SetBattery(level uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isMDR() {
		h.registers[register{0x10, 0x00}] = []byte{level}
	} else {
		h.registers[register{0x02, 0x02}] = []byte{level}
	}
}

// FailOpens makes the next n Open calls fail.
func (h *Headset) FailOpens(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failOpens = n
}

// SetMute makes the headset ignore commands.
func (h *Headset) SetMute(mute bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mute = mute
}

// SetCorrupt makes the headset send replies with broken checksums.
func (h *Headset) SetCorrupt(corrupt bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.corrupt = corrupt
}

// Opens returns how many Open calls were made.
func (h *Headset) Opens() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens
}

// Commands returns how many well-formed commands the headset handled.
func (h *Headset) Commands() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commands
}

// IsOpen reports whether the link is open.
func (h *Headset) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Open opens the simulated link.
func (h *Headset) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opens++
	if h.failOpens > 0 {
		h.failOpens--
		return ErrOpenRefused
	}
	h.open = true
	return nil
}

// Close closes the simulated link.
func (h *Headset) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open = false
	return nil
}

// SetReceiveHandler installs the callback for replies.
func (h *Headset) SetReceiveHandler(fn func([]byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onData = fn
}

// SetCloseHandler installs the callback for link loss.
func (h *Headset) SetCloseHandler(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = fn
}

// Drop simulates the headset going out of range.
func (h *Headset) Drop(err error) {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return
	}
	h.open = false
	fn := h.onClose
	h.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}

// Write delivers a command to the headset. Replies are delivered
// synchronously through the receive handler.
func (h *Headset) Write(data []byte) error {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return ErrNotOpen
	}
	var replies [][]byte
	if !h.mute {
		if h.isMDR() {
			replies = h.handleMDR(data)
		} else {
			replies = h.handleBMAP(data)
		}
	}
	fn := h.onData
	h.mu.Unlock()

	if fn == nil {
		return nil
	}
	for _, r := range replies {
		fn(r)
	}
	return nil
}

func (h *Headset) isMDR() bool {
	return h.config.Version == codec.MDRv1 || h.config.Version == codec.MDRv2
}

// BMAP operators.
const (
	opGet    = 0x01
	opSet    = 0x02
	opStatus = 0x03
	opError  = 0x04
)

func (h *Headset) handleBMAP(frame []byte) [][]byte {
	body := frame
	if h.config.Version == codec.BMAPv2 {
		if len(frame) < 2 || len(frame) != int(frame[0])+2 {
			return nil
		}
		body = frame[1 : len(frame)-1]
		if codec.BMAPChecksum(body) != frame[len(frame)-1] {
			return nil
		}
	}
	if len(body) < 4 || len(body) != 4+int(body[3]) {
		return nil
	}
	h.commands++

	reg := register{body[0], body[1]}
	stored, known := h.registers[reg]
	if !known {
		return [][]byte{h.wrapBMAP([]byte{body[0], body[1], opError, 0x00})}
	}

	switch body[2] {
	case opGet:
	case opSet:
		stored = bytes.Clone(body[4:])
		h.registers[reg] = stored
	default:
		return [][]byte{h.wrapBMAP([]byte{body[0], body[1], opError, 0x00})}
	}

	reply := append([]byte{body[0], body[1], opStatus, byte(len(stored))}, stored...)
	return [][]byte{h.wrapBMAP(reply)}
}

func (h *Headset) wrapBMAP(v1 []byte) []byte {
	if h.config.Version != codec.BMAPv2 {
		return v1
	}
	sum := codec.BMAPChecksum(v1)
	if h.corrupt {
		sum++
	}
	out := append([]byte{byte(len(v1))}, v1...)
	return append(out, sum)
}

// MDR framing.
const (
	mdrStart   = 0x3E
	mdrEnd     = 0x3C
	mdrAck     = 0x01
	mdrCommand = 0x0C
)

func (h *Headset) handleMDR(frame []byte) [][]byte {
	if len(frame) < 6 || frame[0] != mdrStart || frame[len(frame)-1] != mdrEnd {
		return nil
	}
	n := int(frame[3])
	if len(frame) != n+6 || n < 2 {
		return nil
	}
	body := frame[4 : 4+n]
	if codec.ByteSum(frame[1:4], body) != frame[4+n] {
		return nil
	}
	h.commands++

	hdr := 2
	if h.config.Version == codec.MDRv2 {
		hdr = 3
	}
	if len(body) < hdr {
		return nil
	}

	cat, sub := body[0], body[1]
	ack := h.mdrFrame(mdrAck, nil)

	if stored, ok := h.registers[register{cat, sub}]; ok {
		return [][]byte{ack, h.mdrReply(cat+1, sub, stored)}
	}
	if cat >= 2 {
		reg := register{cat - 2, sub}
		if _, ok := h.registers[reg]; ok {
			stored := bytes.Clone(body[hdr:])
			h.registers[reg] = stored
			return [][]byte{ack, h.mdrReply(cat-1, sub, stored)}
		}
	}
	// Unknown commands are acknowledged and otherwise ignored.
	return [][]byte{ack}
}

func (h *Headset) mdrReply(cat, sub byte, value []byte) []byte {
	body := []byte{cat, sub}
	if h.config.Version == codec.MDRv2 {
		body = append(body, 0x00)
	}
	return h.mdrFrame(mdrCommand, append(body, value...))
}

func (h *Headset) mdrFrame(dataType byte, body []byte) []byte {
	header := []byte{dataType, h.seq, byte(len(body))}
	h.seq++
	sum := codec.ByteSum(header, body)
	if h.corrupt {
		sum++
	}
	out := append([]byte{mdrStart}, header...)
	out = append(out, body...)
	return append(out, sum, mdrEnd)
}

var _ channel.Transport = (*Headset)(nil)
