package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/log"
)

// Type is a transport kind.
type Type uint8

const (
	// TypeStream is a serial, stream-oriented link.
	TypeStream Type = iota + 1
	// TypeCharacteristic is a GATT write/notify characteristic pair.
	TypeCharacteristic
)

// String returns the type name used in configuration.
func (t Type) String() string {
	switch t {
	case TypeStream:
		return "stream"
	case TypeCharacteristic:
		return "characteristic"
	default:
		return "unknown"
	}
}

// ParseType resolves a type name.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "stream", "rfcomm":
		return TypeStream, nil
	case "characteristic", "gatt", "ble":
		return TypeCharacteristic, nil
	}
	return 0, fmt.Errorf("unknown channel type %q", s)
}

// DefaultTimeout is used when SendCommand is given no timeout.
const DefaultTimeout = 5 * time.Second

// ErrBusy is returned when a command is sent while another is in flight.
var ErrBusy = fault.New(fault.KindCommandRejected, "Another command is still waiting for a response")

// Transport is a raw byte link to a headset.
type Transport interface {
	// Open establishes the link. It blocks until the link is usable.
	Open(ctx context.Context) error

	// Close tears the link down.
	Close() error

	// Write sends bytes to the headset.
	Write(data []byte) error

	// SetReceiveHandler installs the callback for incoming bytes.
	SetReceiveHandler(fn func(data []byte))

	// SetCloseHandler installs the callback for link loss not caused by Close.
	SetCloseHandler(fn func(err error))
}

// Channel is an open command link to one headset.
type Channel interface {
	Address() string
	Type() Type
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// SendCommand writes cmd and waits for the reply. A nil prefix accepts the
	// first non-empty receipt. A timeout of zero uses the channel default.
	SendCommand(ctx context.Context, cmd, prefix []byte, timeout time.Duration) ([]byte, error)

	// OnClosed registers a callback for unexpected link loss.
	OnClosed(fn func(err error))
}

// Config configures a Conn.
type Config struct {
	// Timeout is the default per-command timeout (default: 5s).
	Timeout time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger

	// Capture records frames. Nil disables capture.
	Capture *log.Session
}

type result struct {
	data []byte
	err  error
}

// request is the single in-flight command. done is buffered so the resolver
// never blocks; whoever removes the request from the slot owns resolving it.
type request struct {
	prefix []byte
	buf    []byte
	done   chan result
}

// Conn implements Channel over a Transport.
type Conn struct {
	address   string
	typ       Type
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
	capture   *log.Session

	mu       sync.Mutex
	open     bool
	pending  *request
	onClosed func(error)
}

// NewConn wraps transport as a channel for address.
func NewConn(address string, typ Type, transport Transport, cfg Config) *Conn {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conn{
		address:   address,
		typ:       typ,
		transport: transport,
		timeout:   cfg.Timeout,
		logger:    logger.With("channel", typ.String()),
		capture:   cfg.Capture,
	}
}

// Address returns the headset address.
func (c *Conn) Address() string { return c.address }

// Type returns the transport kind.
func (c *Conn) Type() Type { return c.typ }

// IsOpen reports whether the channel is open.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// OnClosed registers fn for unexpected link loss. It is not called by Close.
func (c *Conn) OnClosed(fn func(err error)) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// Open opens the underlying transport.
func (c *Conn) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.transport.SetReceiveHandler(c.receive)
	c.transport.SetCloseHandler(c.lost)
	if err := c.transport.Open(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fault.Wrap(fault.KindConnectionFailed, err, "")
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()

	c.capture.State(log.StateEntityChannel, "CLOSED", "OPEN", c.typ.String())
	c.logger.Debug("channel opened")
	return nil
}

// Close fails any pending command and closes the transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	c.failPendingLocked(fault.ErrChannelClosed)
	c.mu.Unlock()

	c.capture.State(log.StateEntityChannel, "OPEN", "CLOSED", "closed")
	return c.transport.Close()
}

// lost handles link loss reported by the transport.
func (c *Conn) lost(err error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.open = false
	c.failPendingLocked(fault.ErrChannelClosed)
	fn := c.onClosed
	c.mu.Unlock()

	reason := "link lost"
	if err != nil {
		reason = err.Error()
	}
	c.capture.State(log.StateEntityChannel, "OPEN", "CLOSED", reason)
	c.logger.Info("channel closed by transport", "error", err)
	if fn != nil {
		fn(err)
	}
}

func (c *Conn) failPendingLocked(err error) {
	if c.pending == nil {
		return
	}
	c.pending.done <- result{err: err}
	c.pending = nil
}

// SendCommand writes cmd and waits for the reply.
func (c *Conn) SendCommand(ctx context.Context, cmd, prefix []byte, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, fault.ErrNotConnected
	}
	if c.pending != nil {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	req := &request{
		prefix: bytes.Clone(prefix),
		done:   make(chan result, 1),
	}
	c.pending = req
	c.mu.Unlock()

	c.capture.Frame(log.DirectionOut, cmd, false)
	if err := c.transport.Write(cmd); err != nil {
		c.release(req)
		return nil, fault.Wrap(fault.KindChannelClosed, err, "")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-req.done:
		return res.data, res.err
	case <-timer.C:
		if c.release(req) {
			return nil, fault.Newf(fault.KindCommandTimeout, "No response within %s", timeout)
		}
	case <-ctx.Done():
		if c.release(req) {
			return nil, ctx.Err()
		}
	}
	// Resolved concurrently with the timer or cancellation; the result wins.
	res := <-req.done
	return res.data, res.err
}

// release empties the slot if it still holds req. It reports whether the
// caller now owns req.
func (c *Conn) release(req *request) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != req {
		return false
	}
	c.pending = nil
	return true
}

func (c *Conn) receive(data []byte) {
	if len(data) == 0 {
		return
	}

	c.mu.Lock()
	req := c.pending
	if req == nil {
		c.mu.Unlock()
		c.capture.Frame(log.DirectionIn, data, true)
		c.logger.Debug("dropped unsolicited bytes", "size", len(data))
		return
	}
	c.capture.Frame(log.DirectionIn, data, false)

	if len(req.prefix) == 0 {
		c.pending = nil
		req.done <- result{data: bytes.Clone(data)}
		c.mu.Unlock()
		return
	}

	req.buf = append(req.buf, data...)
	if i := bytes.Index(req.buf, req.prefix); i >= 0 {
		c.pending = nil
		req.done <- result{data: bytes.Clone(req.buf[i:])}
		c.mu.Unlock()
		return
	}
	// Keep only a tail that could still begin the prefix.
	if keep := len(req.prefix) - 1; len(req.buf) > keep {
		req.buf = append(req.buf[:0], req.buf[len(req.buf)-keep:]...)
	}
	c.mu.Unlock()
}

var _ Channel = (*Conn)(nil)
