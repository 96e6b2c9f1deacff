package bridge

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/earlink/earlink-go/pkg/connection"
)

// Browser defaults.
const (
	DefaultBrowseWindow   = 5 * time.Second
	DefaultBrowseInterval = 30 * time.Second
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Window is how long each browse round listens (default: 5s).
	Window time.Duration

	// Interval is the pause between rounds that found a bridge
	// (default: 30s).
	Interval time.Duration

	// Backoff paces rounds that found nothing or failed. A jittered
	// 1s..60s backoff is used when nil.
	Backoff *connection.Backoff

	// Interface restricts browsing to one network interface.
	Interface string

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// browseFunc runs one browse round until ctx is done, reporting bridges as
// they appear and disappear.
type browseFunc func(ctx context.Context, found func(*Bridge), lost func(instance string)) error

// Browser keeps a Provider's bridge set current from mDNS.
type Browser struct {
	provider *Provider
	config   BrowserConfig
	logger   *slog.Logger
	backoff  *connection.Backoff
	browse   browseFunc
}

// NewBrowser creates a browser feeding p.
func NewBrowser(p *Provider, cfg BrowserConfig) *Browser {
	if cfg.Window <= 0 {
		cfg.Window = DefaultBrowseWindow
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBrowseInterval
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = connection.NewBackoff(connection.BackoffConfig{
			Initial: time.Second,
			Max:     time.Minute,
			Jitter:  connection.JitterFactor,
		})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Browser{
		provider: p,
		config:   cfg,
		logger:   logger,
		backoff:  backoff,
	}
	b.browse = b.mdns
	return b
}

// Run browses in rounds until ctx is done. Rounds that find nothing are
// retried with backoff.
func (b *Browser) Run(ctx context.Context) error {
	for {
		found, err := b.Round(ctx)
		if ctx.Err() != nil {
			return nil
		}

		var wait time.Duration
		if err != nil || found == 0 {
			wait = b.backoff.Next()
			b.logger.Debug("no bridges found", "error", err, "retry_in", wait)
		} else {
			b.backoff.Reset()
			wait = b.config.Interval
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Round browses once for the configured window and returns how many
// bridges were seen.
func (b *Browser) Round(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.Window)
	defer cancel()

	seen := make(map[string]bool)
	err := b.browse(ctx,
		func(br *Bridge) {
			seen[br.Instance] = true
			b.provider.Add(br)
		},
		func(instance string) {
			delete(seen, instance)
			b.provider.Remove(instance)
		},
	)
	return len(seen), err
}

func (b *Browser) mdns(ctx context.Context, found func(*Bridge), lost func(string)) error {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	errs := make(chan error, 1)
	go func() {
		errs <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...)
	}()

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			if br := bridgeFromEntry(e); br != nil {
				found(br)
			}
		case e, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			lost(e.Instance)
		case err := <-errs:
			if err != nil {
				return err
			}
			errs = nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		} else {
			b.logger.Warn("browse interface not found", "interface", b.config.Interface)
		}
	}
	return opts
}

func bridgeFromEntry(e *zeroconf.ServiceEntry) *Bridge {
	host := e.HostName
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	}
	if host == "" || e.Port == 0 {
		return nil
	}
	info := DecodeTXT(e.Text)
	return &Bridge{
		Instance: e.Instance,
		Host:     host,
		Port:     e.Port,
		Channels: info.Channels,
		Devices:  info.Devices,
	}
}
