package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/google/uuid"

	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/match"
)

// mDNS service identity.
const (
	ServiceType = "_hsbridge._tcp"
	Domain      = "local."
)

// ServerConfig configures a bridge server.
type ServerConfig struct {
	// Provider supplies the headset transports being relayed. Required.
	Provider channel.Provider

	// Address to listen on (default ":0").
	Address string

	// Instance is the advertised mDNS instance name. Empty disables
	// advertising.
	Instance string

	// Devices limits the advertised device list. Empty advertises a bridge
	// that accepts any address.
	Devices []string

	// OpenTimeout bounds opening a headset for a session (default: 10s).
	OpenTimeout time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Server relays headset transports to bridge clients.
type Server struct {
	config ServerConfig
	logger *slog.Logger

	listener net.Listener
	mdns     *zeroconf.Server

	mu       sync.Mutex
	sessions map[string]net.Conn

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a bridge server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("bridge: provider is required")
	}
	if cfg.Address == "" {
		cfg.Address = ":0"
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		config:   cfg,
		logger:   logger,
		sessions: make(map[string]net.Conn),
	}, nil
}

// Start listens and, when an instance name is configured, advertises the
// bridge over mDNS.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("bridge: server already running")
	}
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener
	s.running.Store(true)

	if s.config.Instance != "" {
		port := listener.Addr().(*net.TCPAddr).Port
		txt := EncodeTXT(TXTInfo{Channels: []channel.Type{channel.TypeStream, channel.TypeCharacteristic}, Devices: s.config.Devices})
		server, err := zeroconf.Register(s.config.Instance, ServiceType, Domain, port, txt, nil)
		if err != nil {
			s.Stop()
			return fmt.Errorf("advertise bridge: %w", err)
		}
		s.mdns = server
		s.logger.Info("bridge advertised", "instance", s.config.Instance, "port", port)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every session.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.mdns = nil
	}
	err := s.listener.Close()

	s.mu.Lock()
	for _, conn := range s.sessions {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// SessionCount returns the number of relayed sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Warn("accept failed", "error", err)
			}
			continue
		}
		id := uuid.NewString()
		s.mu.Lock()
		s.sessions[id] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.sessions, id)
				s.mu.Unlock()
				conn.Close()
			}()
			s.serve(id, conn)
		}()
	}
}

// serve runs one session: handshake, then relay until either side closes.
func (s *Server) serve(id string, conn net.Conn) {
	logger := s.logger.With("session", id, "remote", conn.RemoteAddr().String())
	r := NewFrameReader(conn)
	w := NewFrameWriter(conn)

	conn.SetReadDeadline(time.Now().Add(s.config.OpenTimeout))
	f, err := r.ReadFrame()
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		logger.Debug("session ended before open", "error", err)
		return
	}
	if f.Type != FrameOpen {
		logger.Debug("expected open frame", "type", f.Type)
		return
	}
	var req OpenRequest
	if err := decode(f.Payload, &req); err != nil {
		reply(w, fmt.Errorf("decode open request: %w", err))
		return
	}
	logger = logger.With("device", req.Address)

	transport, err := s.open(&req)
	if err != nil {
		logger.Info("open refused", "error", err)
		reply(w, err)
		return
	}
	defer transport.Close()

	transport.SetReceiveHandler(func(data []byte) {
		if err := w.WriteFrame(FrameData, data); err != nil {
			logger.Debug("relay to client failed", "error", err)
		}
	})
	transport.SetCloseHandler(func(err error) {
		logger.Info("headset link lost", "error", err)
		_ = w.WriteFrame(FrameClose, nil)
		conn.Close()
	})
	if err := reply(w, nil); err != nil {
		return
	}
	logger.Info("session opened", "channel", req.Channel)

	for {
		f, err := r.ReadFrame()
		if err != nil {
			logger.Debug("session read ended", "error", err)
			return
		}
		switch f.Type {
		case FrameData:
			if err := transport.Write(f.Payload); err != nil {
				logger.Warn("relay to headset failed", "error", err)
			}
		case FrameClose:
			logger.Info("session closed by client")
			return
		default:
			logger.Debug("ignoring frame", "type", f.Type)
		}
	}
}

func (s *Server) open(req *OpenRequest) (channel.Transport, error) {
	typ, err := req.Type()
	if err != nil {
		return nil, err
	}
	dev := &match.ObservedDevice{Address: req.Address}
	transport, err := s.config.Provider.Transport(dev, typ, req.Characteristic())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.OpenTimeout)
	defer cancel()
	if err := transport.Open(ctx); err != nil {
		return nil, err
	}
	return transport, nil
}

func reply(w *FrameWriter, err error) error {
	res := OpenResult{OK: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	data, encErr := encode(&res)
	if encErr != nil {
		return encErr
	}
	return w.WriteFrame(FrameOpenResult, data)
}

// Endpoint formats host and port for dialing.
func Endpoint(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
