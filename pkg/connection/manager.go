package connection

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/log"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/plugin"
	"github.com/earlink/earlink-go/pkg/registry"
	"github.com/earlink/earlink-go/pkg/settings"
)

// ErrSuperseded is returned by a Connect that a later Connect or Disconnect
// cancelled.
var ErrSuperseded = fault.New(fault.KindConnectionFailed, "connection attempt superseded").WithStrategy(fault.StrategyNone)

// DefaultPersistTimeout bounds settings capture during Disconnect.
const DefaultPersistTimeout = 3 * time.Second

// State is the connection state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// PluginRegistry resolves and activates plugins. It is satisfied by
// *registry.Registry.
type PluginRegistry interface {
	FindPlugin(dev *match.ObservedDevice) (plugin.Plugin, error)
	Activate(p plugin.Plugin) error
	Deactivate()
	Active() plugin.Plugin
}

var _ PluginRegistry = (*registry.Registry)(nil)

// ChannelBuilder builds unopened channels. It is satisfied by
// *channel.Factory.
type ChannelBuilder interface {
	Build(dev *match.ObservedDevice, preferred []channel.Type, capture *log.Session) (channel.Channel, error)
}

var _ ChannelBuilder = (*channel.Factory)(nil)

// SettingsStore restores settings on connect and persists them on
// disconnect. It is satisfied by *settings.Store.
type SettingsStore interface {
	Apply(ctx context.Context, p plugin.Plugin, deviceID string) error
	Persist(ctx context.Context, p plugin.Plugin, deviceID string) error
}

var _ SettingsStore = (*settings.Store)(nil)

// Config configures a Manager.
type Config struct {
	// Registry resolves plugins. Required.
	Registry PluginRegistry

	// Channels builds channels. Required.
	Channels ChannelBuilder

	// Settings is optional.
	Settings SettingsStore

	// Failures tracks unrecoverable plugins. A private tracker is used
	// when nil.
	Failures *plugin.FailureTracker

	// Observer receives notifications. Optional.
	Observer Observer

	// Retry bounds connect attempts. Zero fields use the defaults.
	Retry RetryPolicy

	// PersistTimeout bounds settings capture on disconnect
	// (default: DefaultPersistTimeout).
	PersistTimeout time.Duration

	// Capture receives protocol events for every connection. Optional.
	Capture log.Logger

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Status is a snapshot of the manager.
type Status struct {
	State   State
	Device  *match.ObservedDevice
	Plugin  plugin.Plugin
	Channel channel.Channel

	// Attempt is the current or last connect attempt number.
	Attempt int
}

// link is one established connection.
type link struct {
	dev     *match.ObservedDevice
	plugin  plugin.Plugin
	ch      channel.Channel
	capture *log.Session
}

// operation is a Connect or Disconnect in progress. Operations run one at
// a time: each cancels its predecessor and waits for it to finish.
type operation struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the connection state machine. It is safe for concurrent
// use.
type Manager struct {
	config   Config
	retry    RetryPolicy
	failures *plugin.FailureTracker
	observer Observer
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	current  *link
	inflight *operation
	attempt  int
	device   *match.ObservedDevice
}

// NewManager creates a manager in the Disconnected state.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	failures := cfg.Failures
	if failures == nil {
		failures = plugin.NewFailureTracker()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	return &Manager{
		config:   cfg,
		retry:    cfg.Retry.withDefaults(),
		failures: failures,
		observer: observer,
		logger:   logger,
	}
}

// Failures returns the failure tracker.
func (m *Manager) Failures() *plugin.FailureTracker { return m.failures }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the manager.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state, Device: m.device, Attempt: m.attempt}
	if m.current != nil {
		st.Plugin = m.current.plugin
		st.Channel = m.current.ch
	}
	return st
}

// Plugin returns the connected plugin, or nil.
func (m *Manager) Plugin() plugin.Plugin {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.plugin
}

// ReportDiscovered forwards a discovery to the observer.
func (m *Manager) ReportDiscovered(dev *match.ObservedDevice) {
	m.observer.DeviceDiscovered(dev)
}

// begin supersedes the operation in progress and returns a new one. The
// caller must wait on prev (if any) and call end.
func (m *Manager) begin(cancel context.CancelFunc) (op, prev *operation) {
	op = &operation{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	prev = m.inflight
	if prev != nil {
		prev.cancel()
	}
	m.inflight = op
	m.attempt = 0
	m.mu.Unlock()
	return op, prev
}

func (m *Manager) end(op *operation) {
	m.mu.Lock()
	if m.inflight == op {
		m.inflight = nil
	}
	m.mu.Unlock()
	close(op.done)
}

func (m *Manager) owns(op *operation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight == op
}

// Connect connects to dev, replacing any existing connection. A Connect
// already in progress is cancelled first. It blocks until connected, the
// retry budget is spent, or ctx is done.
func (m *Manager) Connect(ctx context.Context, dev *match.ObservedDevice) error {
	if dev == nil {
		return fault.New(fault.KindInvalidParameter, "device is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	op, prev := m.begin(cancel)
	defer m.end(op)
	if prev != nil {
		<-prev.done
	}
	if !m.owns(op) {
		return ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if old := m.take(); old != nil {
		m.teardown(old, nil, true)
	}
	m.mu.Lock()
	m.device = dev
	m.mu.Unlock()
	m.transition(StateConnecting)

	l, err := m.connectWithRetry(ctx, dev)

	m.mu.Lock()
	owned := m.inflight == op
	if err == nil && owned && !l.ch.IsOpen() {
		err = fault.Wrap(fault.KindChannelClosed, fault.ErrChannelClosed, "channel closed while connecting")
	}
	if err == nil && owned {
		m.current = l
	}
	m.mu.Unlock()

	if err == nil && !owned {
		m.release(l)
	}
	if !owned {
		return ErrSuperseded
	}
	if err != nil {
		if l != nil {
			m.release(l)
		}
		m.transition(StateDisconnected)
		m.logger.Warn("connect failed", "device", dev.Name, "error", err)
		m.observer.ConnectionFailed(dev, err)
		return err
	}

	m.transition(StateConnected)
	m.logger.Info("connected", "device", dev.Name, "plugin", l.plugin.ID())
	m.observer.Connected(dev, l.plugin)
	return nil
}

// connectWithRetry runs attempts until one succeeds, the error is not
// retryable, the attempt budget is spent, or ctx is done.
func (m *Manager) connectWithRetry(ctx context.Context, dev *match.ObservedDevice) (*link, error) {
	for n := 1; ; n++ {
		m.mu.Lock()
		m.attempt = n
		m.mu.Unlock()

		l, err := m.connectOnce(ctx, dev)
		if err == nil {
			return l, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !fault.StrategyOf(err).Retryable() || n >= m.retry.MaxAttempts {
			return nil, err
		}
		delay := m.retry.Delay(n)
		m.logger.Info("connect attempt failed, retrying",
			"attempt", n, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (m *Manager) connectOnce(ctx context.Context, dev *match.ObservedDevice) (*link, error) {
	p, err := m.config.Registry.FindPlugin(dev)
	if err != nil {
		return nil, err
	}
	if err := m.failures.Check(p.ID()); err != nil {
		return nil, err
	}

	var capture *log.Session
	if m.config.Capture != nil {
		capture = log.NewSession(m.config.Capture, dev.Address)
		capture.SetPlugin(p.ID(), detectedModel(p))
	}

	ch, err := m.config.Channels.Build(dev, p.ChannelTypes(), capture)
	if err != nil {
		return nil, err
	}
	if err := ch.Open(ctx); err != nil {
		return nil, err
	}
	l := &link{dev: dev, plugin: p, ch: ch, capture: capture}
	ch.OnClosed(func(err error) { m.lost(l, err) })

	if c, ok := p.(plugin.Capturer); ok {
		c.SetCapture(capture)
	}
	if err := p.Connect(ctx, ch); err != nil {
		ch.Close()
		if fault.KindOf(err) == fault.KindUnrecoverable {
			m.failures.MarkUnrecoverable(p.ID(), err)
			m.logger.Error("plugin marked unrecoverable", "plugin", p.ID(), "error", err)
		}
		capture.Error(log.LayerConnection, err, "plugin connect")
		return nil, err
	}
	if err := m.config.Registry.Activate(p); err != nil {
		p.Disconnect()
		return nil, err
	}
	capture.State(log.StateEntityPlugin, "INACTIVE", "ACTIVE", p.ID())

	if m.config.Settings != nil {
		if err := m.config.Settings.Apply(ctx, p, dev.Address); err != nil {
			m.logger.Warn("restoring settings failed", "plugin", p.ID(), "error", err)
		}
	}
	return l, nil
}

// Disconnect cancels any Connect in progress, persists settings (errors
// are ignored), closes the channel and deactivates the plugin.
func (m *Manager) Disconnect() {
	op, prev := m.begin(func() {})
	defer m.end(op)
	if prev != nil {
		<-prev.done
	}
	if l := m.take(); l != nil {
		m.teardown(l, nil, true)
	}
	m.transition(StateDisconnected)
}

// take detaches the current link.
func (m *Manager) take() *link {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.current
	m.current = nil
	return l
}

// lost handles unexpected channel closure. It never retries.
func (m *Manager) lost(l *link, err error) {
	m.mu.Lock()
	if m.current != l {
		m.mu.Unlock()
		return
	}
	m.current = nil
	idle := m.inflight == nil
	m.mu.Unlock()

	m.logger.Warn("connection lost", "device", l.dev.Name, "error", err)
	if err == nil {
		err = fault.ErrChannelClosed
	}
	m.teardown(l, err, false)
	if idle {
		m.transition(StateDisconnected)
	}
}

// teardown releases l and notifies the observer. Settings are persisted
// first when persist is set; failures there are ignored.
func (m *Manager) teardown(l *link, cause error, persist bool) {
	if persist && m.config.Settings != nil && l.plugin.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), m.config.PersistTimeout)
		if err := m.config.Settings.Persist(ctx, l.plugin, l.dev.Address); err != nil {
			m.logger.Debug("persisting settings failed", "plugin", l.plugin.ID(), "error", err)
		}
		cancel()
	}
	m.release(l)
	reason := "disconnected"
	if cause != nil {
		reason = cause.Error()
	}
	l.capture.State(log.StateEntityConnection, StateConnected.String(), StateDisconnected.String(), reason)
	m.observer.Disconnected(l.dev, cause)
}

// release closes l's channel and deactivates or disconnects its plugin.
func (m *Manager) release(l *link) {
	if m.config.Registry.Active() == l.plugin {
		m.config.Registry.Deactivate()
	} else if l.plugin.IsConnected() {
		_ = l.plugin.Disconnect()
	}
	_ = l.ch.Close()
}

func (m *Manager) transition(to State) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from == to {
		return
	}
	m.logger.Debug("state changed", "from", from, "to", to)
	m.observer.StateChanged(from, to)
}

func detectedModel(p plugin.Plugin) string {
	if d, ok := p.(interface{ DetectedModel() string }); ok {
		return d.DetectedModel()
	}
	return ""
}
