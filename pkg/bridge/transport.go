package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/channel"
)

// Transport errors.
var (
	ErrNotOpen      = errors.New("bridge link is not open")
	ErrRefused      = errors.New("bridge refused the link")
	ErrRemoteClosed = errors.New("bridge closed the link")
)

// DefaultDialTimeout bounds dialing and the open handshake when the
// context has no deadline.
const DefaultDialTimeout = 10 * time.Second

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Endpoint is the bridge's host:port.
	Endpoint string

	// Request names the headset and channel to open.
	Request OpenRequest

	// DialTimeout bounds dial plus handshake (default: DefaultDialTimeout).
	DialTimeout time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Transport is a channel.Transport relayed through a bridge.
type Transport struct {
	config TransportConfig
	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	writer  *FrameWriter
	open    bool
	onData  func([]byte)
	onClose func(error)
	done    chan struct{}
}

var _ channel.Transport = (*Transport)(nil)

// NewTransport creates an unopened bridge transport.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{
		config: cfg,
		logger: logger.With("bridge", cfg.Endpoint, "device", cfg.Request.Address),
	}
}

// SetReceiveHandler installs the callback for incoming bytes.
func (t *Transport) SetReceiveHandler(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onData = fn
}

// SetCloseHandler installs the callback for link loss.
func (t *Transport) SetCloseHandler(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

// Open dials the bridge and asks it to open the headset link.
func (t *Transport) Open(ctx context.Context) error {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.DialTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.config.Endpoint)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	if err := t.handshake(ctx, conn); err != nil {
		conn.Close()
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.writer = NewFrameWriter(conn)
	t.open = true
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.readLoop(conn, done)
	t.logger.Debug("bridge link opened")
	return nil
}

func (t *Transport) handshake(ctx context.Context, conn net.Conn) error {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	req, err := encode(&t.config.Request)
	if err != nil {
		return fmt.Errorf("encode open request: %w", err)
	}
	if err := NewFrameWriter(conn).WriteFrame(FrameOpen, req); err != nil {
		return err
	}
	f, err := NewFrameReader(conn).ReadFrame()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read open result: %w", err)
	}
	if f.Type != FrameOpenResult {
		return fmt.Errorf("unexpected %s frame during open", f.Type)
	}
	var res OpenResult
	if err := decode(f.Payload, &res); err != nil {
		return fmt.Errorf("decode open result: %w", err)
	}
	if !res.OK {
		return fmt.Errorf("%w: %s", ErrRefused, res.Error)
	}
	return nil
}

// Write sends bytes to the headset.
func (t *Transport) Write(data []byte) error {
	t.mu.Lock()
	w := t.writer
	open := t.open
	t.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return w.WriteFrame(FrameData, data)
}

// Close ends the session. The close handler is not called.
func (t *Transport) Close() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return nil
	}
	t.open = false
	conn, w, done := t.conn, t.writer, t.done
	t.conn, t.writer = nil, nil
	t.mu.Unlock()

	_ = w.WriteFrame(FrameClose, nil)
	err := conn.Close()
	<-done
	return err
}

func (t *Transport) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	r := NewFrameReader(conn)
	for {
		f, err := r.ReadFrame()
		if err != nil {
			t.lost(conn, err)
			return
		}
		switch f.Type {
		case FrameData:
			t.mu.Lock()
			fn := t.onData
			t.mu.Unlock()
			if fn != nil && len(f.Payload) > 0 {
				fn(f.Payload)
			}
		case FrameClose:
			t.lost(conn, ErrRemoteClosed)
			return
		default:
			t.logger.Debug("ignoring frame", "type", f.Type)
		}
	}
}

// lost reports link loss unless Close got there first.
func (t *Transport) lost(conn net.Conn, err error) {
	t.mu.Lock()
	if !t.open || t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.open = false
	t.conn, t.writer = nil, nil
	fn := t.onClose
	t.mu.Unlock()

	conn.Close()
	if errors.Is(err, io.EOF) {
		err = ErrRemoteClosed
	}
	t.logger.Info("bridge link lost", "error", err)
	if fn != nil {
		fn(err)
	}
}
