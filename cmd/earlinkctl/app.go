package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/earlink/earlink-go/internal/config"
	"github.com/earlink/earlink-go/pkg/bridge"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/connection"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/log"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/notify"
	"github.com/earlink/earlink-go/pkg/plugin"
	"github.com/earlink/earlink-go/pkg/registry"
	"github.com/earlink/earlink-go/pkg/settings"
	"github.com/earlink/earlink-go/pkg/simulator"
)

// options are the command-line overrides applied over the configuration.
type options struct {
	// Simulate lists simulator presets to use instead of bridges.
	Simulate []string

	// Capture overrides capture.file.
	Capture string
}

// app wires the configured components together.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	reporter *fault.Reporter

	registry *registry.Registry
	watcher  *registry.Watcher
	store    *settings.Store
	manager  *connection.Manager

	sim     *simulator.Provider
	bridges *bridge.Provider
	browser *bridge.Browser

	mqtt    *notify.Client
	capture *log.FileLogger

	mu    sync.Mutex
	known []*match.ObservedDevice

	closers []io.Closer
}

func newApp(cfg *config.Config, opts options, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, reporter: fault.NewReporter(logger.With("component", "fault"))}
	built := a
	defer func() {
		if err != nil {
			err = multierr.Append(err, built.Close())
			a = nil
		}
	}()

	a.registry = registry.New(registry.Config{Logger: logger.With("component", "registry")})
	pcfg := plugin.Config{Timeout: cfg.Connection.CommandTimeout, Logger: logger.With("component", "plugin")}
	for _, p := range plugin.Builtin(pcfg) {
		if err := a.registry.Register(p); err != nil {
			return nil, err
		}
	}
	a.registry.OnEvent(func(ev registry.Event) {
		logger.Debug("registry event", "type", ev.Type, "plugin", ev.PluginID)
	})
	if cfg.Plugins.Dir != "" {
		a.watcher = registry.NewWatcher(a.registry, registry.WatcherConfig{
			Dir:          cfg.Plugins.Dir,
			Loader:       &registry.BundleLoader{Config: pcfg},
			ScanInterval: cfg.Plugins.ScanInterval,
			Logger:       logger.With("component", "hotswap"),
		})
	}

	medium, err := openMedium(cfg.Settings)
	if err != nil {
		return nil, err
	}
	if c, ok := medium.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.store = settings.NewStore(settings.StoreConfig{Medium: medium, Logger: logger.With("component", "settings")})

	provider, err := a.buildProvider(opts.Simulate)
	if err != nil {
		return nil, err
	}
	factory := channel.NewFactory(channel.FactoryConfig{
		Provider: provider,
		Services: cfg.ServiceConfigs(),
		Timeout:  cfg.Connection.CommandTimeout,
		Logger:   logger.With("component", "channel"),
	})

	observers := connection.MultiObserver{logObserver{logger: logger, reporter: a.reporter}}
	if cfg.MQTT.Broker != "" {
		a.mqtt, err = notify.Dial(notify.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Logger:      logger.With("component", "mqtt"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.mqtt)
		observers = append(observers, notify.NewObserver(a.mqtt, notify.ObserverConfig{
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Logger:      logger.With("component", "notify"),
		}))
	}

	var sinks []log.Logger
	captureFile := cfg.Capture.File
	if opts.Capture != "" {
		captureFile = opts.Capture
	}
	if captureFile != "" {
		a.capture, err = log.NewFileLogger(captureFile)
		if err != nil {
			return nil, fmt.Errorf("open capture: %w", err)
		}
		a.closers = append(a.closers, a.capture)
		sinks = append(sinks, a.capture)
	}
	if level, _ := config.ParseLevel(cfg.Log.Level); level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger.With("component", "capture")))
	}
	var capture log.Logger
	if len(sinks) > 0 {
		capture = log.NewMultiLogger(sinks...)
	}

	a.manager = connection.NewManager(connection.Config{
		Registry: a.registry,
		Channels: factory,
		Settings: a.store,
		Observer: observers,
		Retry: connection.RetryPolicy{
			MaxAttempts: cfg.Connection.MaxAttempts,
			BaseDelay:   cfg.Connection.BaseDelay,
			MaxDelay:    cfg.Connection.MaxDelay,
		},
		PersistTimeout: cfg.Connection.PersistTimeout,
		Capture:        capture,
		Logger:         logger.With("component", "connection"),
	})

	for _, dev := range a.known {
		a.manager.ReportDiscovered(dev)
	}
	return a, nil
}

func openMedium(cfg config.SettingsConfig) (settings.Medium, error) {
	switch cfg.Backend {
	case "sqlite":
		m, err := settings.NewSQLiteMedium(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open settings database: %w", err)
		}
		return m, nil
	default:
		return settings.NewFileMedium(cfg.Path), nil
	}
}

// buildProvider returns the simulator when presets are given and the bridge
// provider otherwise.
func (a *app) buildProvider(presets []string) (channel.Provider, error) {
	if len(presets) > 0 {
		a.sim = simulator.NewProvider()
		for _, name := range presets {
			h, err := simulator.FromPreset(name)
			if err != nil {
				return nil, err
			}
			a.sim.Add(h)
			a.known = append(a.known, h.Device())
		}
		return a.sim, nil
	}

	a.bridges = bridge.NewProvider(bridge.ProviderConfig{
		DialTimeout: a.cfg.Connection.CommandTimeout,
		Logger:      a.logger.With("component", "bridge"),
	})
	for _, sb := range a.cfg.Bridge.Static {
		br := &bridge.Bridge{Instance: sb.Name, Host: sb.Host, Port: sb.Port, Devices: sb.Devices}
		for _, s := range sb.Channels {
			t, err := channel.ParseType(s)
			if err != nil {
				return nil, err
			}
			br.Channels = append(br.Channels, t)
		}
		if len(br.Channels) == 0 {
			br.Channels = []channel.Type{channel.TypeStream}
		}
		a.bridges.Add(br)
	}
	for _, d := range a.cfg.Devices {
		a.known = append(a.known, d.Observed())
	}
	if a.cfg.Bridge.Browse {
		a.browser = bridge.NewBrowser(a.bridges, bridge.BrowserConfig{
			Interface: a.cfg.Bridge.Interface,
			Logger:    a.logger.With("component", "browse"),
		})
	}
	return a.bridges, nil
}

// Run drives the background loops until ctx is done.
func (a *app) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}
	if a.browser != nil {
		g.Go(func() error { return a.browser.Run(ctx) })
	}
	return g.Wait()
}

// Devices returns the devices the app knows about, in discovery order.
func (a *app) Devices() []*match.ObservedDevice {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*match.ObservedDevice(nil), a.known...)
}

// Resolve finds a device by 1-based index, address or name. In bridge mode
// an unknown address yields a bare device, which only plugins matching on
// address alone can claim.
func (a *app) Resolve(ref string) (*match.ObservedDevice, error) {
	devices := a.Devices()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(devices) {
			return nil, fmt.Errorf("no device #%d", n)
		}
		return devices[n-1], nil
	}
	for _, dev := range devices {
		if strings.EqualFold(dev.Address, ref) || strings.EqualFold(dev.Name, ref) {
			return dev, nil
		}
	}
	if a.sim == nil && strings.Count(ref, ":") == 5 {
		dev := &match.ObservedDevice{Address: strings.ToUpper(ref)}
		a.mu.Lock()
		a.known = append(a.known, dev)
		a.mu.Unlock()
		a.manager.ReportDiscovered(dev)
		return dev, nil
	}
	return nil, fmt.Errorf("unknown device %q", ref)
}

// Close disconnects and releases every resource.
func (a *app) Close() error {
	if a.manager != nil {
		a.manager.Disconnect()
	}
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}

// serveBridge exposes the simulated headsets as a network bridge.
func (a *app) serveBridge(ctx context.Context, addr, instance string) (*bridge.Server, error) {
	if a.sim == nil {
		return nil, errors.New("bridge serving requires -simulate")
	}
	var devices []string
	for _, dev := range a.sim.Devices() {
		devices = append(devices, dev.Address)
	}
	srv, err := bridge.NewServer(bridge.ServerConfig{
		Provider: a.sim,
		Address:  addr,
		Instance: instance,
		Devices:  devices,
		Logger:   a.logger.With("component", "bridge-server"),
	})
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}

// logObserver reports connection events on the operational log. Failures
// go through the reporter so they are classified and counted.
type logObserver struct {
	logger   *slog.Logger
	reporter *fault.Reporter
}

func (o logObserver) DeviceDiscovered(dev *match.ObservedDevice) {
	o.logger.Debug("device discovered", "device", dev)
}

func (o logObserver) Connected(dev *match.ObservedDevice, p plugin.Plugin) {
	o.logger.Info("connected", "device", dev, "plugin", p.ID())
}

func (o logObserver) Disconnected(dev *match.ObservedDevice, err error) {
	if err != nil {
		o.reporter.Report(err, "device", dev, "event", "link lost")
		return
	}
	o.logger.Info("disconnected", "device", dev)
}

func (o logObserver) ConnectionFailed(dev *match.ObservedDevice, err error) {
	o.reporter.Report(err, "device", dev, "event", "connect failed")
}

func (o logObserver) StateChanged(oldState, newState connection.State) {
	o.logger.Debug("connection state", "from", oldState, "to", newState)
}
