package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/earlink/earlink-go/pkg/plugin"
)

// DefaultScanInterval is the fallback rescan period.
const DefaultScanInterval = 5 * time.Second

// Loader turns a bundle into a plugin.
type Loader interface {
	// Match reports whether path looks like a bundle this loader reads.
	Match(path string) bool

	// Load reads the bundle at path.
	Load(path string) (plugin.Plugin, error)
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Dir is the bundle directory.
	Dir string

	// Loader reads bundles. Defaults to a BundleLoader.
	Loader Loader

	// ScanInterval is the fallback rescan period (default: DefaultScanInterval).
	ScanInterval time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// bundle is the last state seen for one path.
type bundle struct {
	modTime  time.Time
	size     int64
	pluginID string
}

func (b bundle) sameFile(info os.FileInfo) bool {
	return b.modTime.Equal(info.ModTime()) && b.size == info.Size()
}

// Watcher keeps the registry in sync with a bundle directory.
type Watcher struct {
	registry *Registry
	config   WatcherConfig
	logger   *slog.Logger

	// scanMu serializes scans. mu guards bundles only and is never held
	// across registry calls, so event handlers may call Bundles.
	scanMu  sync.Mutex
	mu      sync.Mutex
	bundles map[string]bundle
}

// NewWatcher creates a watcher feeding r.
func NewWatcher(r *Registry, cfg WatcherConfig) *Watcher {
	if cfg.Loader == nil {
		cfg.Loader = &BundleLoader{}
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultScanInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		registry: r,
		config:   cfg,
		logger:   logger.With("dir", cfg.Dir),
		bundles:  make(map[string]bundle),
	}
}

// Bundles returns the plugin id registered from each bundle path. Bundles
// that failed to load map to an empty id.
func (w *Watcher) Bundles() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, len(w.bundles))
	for path, b := range w.bundles {
		out[path] = b.pluginID
	}
	return out
}

// Scan reconciles the registry with the directory: new bundles are loaded
// and registered, changed ones replaced, missing ones unregistered.
// Per-bundle failures are logged and retried on the next scan where that
// can help; only an unreadable directory is returned as an error.
func (w *Watcher) Scan() error {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	entries, err := os.ReadDir(w.config.Dir)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(entries))
	var paths []string
	infos := make(map[string]os.FileInfo, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.config.Dir, e.Name())
		if !w.config.Loader.Match(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info; the next scan settles it.
			continue
		}
		seen[path] = true
		paths = append(paths, path)
		infos[path] = info
	}
	sort.Strings(paths)

	w.mu.Lock()
	tracked := maps.Clone(w.bundles)
	w.mu.Unlock()

	for path, b := range tracked {
		if !seen[path] {
			w.remove(path, b)
		}
	}
	for _, path := range paths {
		info := infos[path]
		prev, known := tracked[path]
		switch {
		case !known:
			w.add(path, info)
		case !prev.sameFile(info):
			w.update(path, prev, info)
		}
	}
	return nil
}

func (w *Watcher) track(path string, b bundle) {
	w.mu.Lock()
	w.bundles[path] = b
	w.mu.Unlock()
}

func (w *Watcher) untrack(path string) {
	w.mu.Lock()
	delete(w.bundles, path)
	w.mu.Unlock()
}

func (w *Watcher) add(path string, info os.FileInfo) {
	rec := bundle{modTime: info.ModTime(), size: info.Size()}
	p, err := w.config.Loader.Load(path)
	if err != nil {
		w.logger.Warn("bundle load failed", "bundle", filepath.Base(path), "error", err)
		w.track(path, rec)
		return
	}
	if err := w.registry.Register(p); err != nil {
		w.logger.Warn("bundle registration failed", "bundle", filepath.Base(path), "error", err)
		w.track(path, rec)
		return
	}
	rec.pluginID = p.ID()
	w.track(path, rec)
	w.logger.Info("bundle added", "bundle", filepath.Base(path), "plugin", p.ID())
}

func (w *Watcher) remove(path string, prev bundle) {
	if prev.pluginID != "" {
		err := w.registry.Unregister(prev.pluginID)
		if errors.Is(err, ErrPluginActive) {
			// Keep the record; the removal is retried once deactivated.
			w.logger.Info("bundle removal deferred, plugin active", "plugin", prev.pluginID)
			return
		}
		if err != nil {
			w.logger.Warn("bundle unregister failed", "plugin", prev.pluginID, "error", err)
		}
	}
	w.untrack(path)
	w.logger.Info("bundle removed", "bundle", filepath.Base(path), "plugin", prev.pluginID)
}

func (w *Watcher) update(path string, prev bundle, info os.FileInfo) {
	if prev.pluginID == "" {
		w.add(path, info)
		return
	}
	p, err := w.config.Loader.Load(path)
	if err != nil {
		// The old plugin stays registered until the bundle loads again.
		w.logger.Warn("bundle reload failed", "bundle", filepath.Base(path), "error", err)
		prev.modTime, prev.size = info.ModTime(), info.Size()
		w.track(path, prev)
		return
	}
	err = w.registry.Replace(prev.pluginID, p)
	if errors.Is(err, ErrPluginActive) {
		w.logger.Info("bundle update deferred, plugin active", "plugin", prev.pluginID)
		return
	}
	if err != nil {
		w.logger.Warn("bundle update failed", "bundle", filepath.Base(path), "error", err)
		prev.modTime, prev.size = info.ModTime(), info.Size()
		w.track(path, prev)
		return
	}
	w.track(path, bundle{modTime: info.ModTime(), size: info.Size(), pluginID: p.ID()})
	w.logger.Info("bundle updated", "bundle", filepath.Base(path), "plugin", p.ID())
}

// Run scans once, then rescans on filesystem notifications and every
// ScanInterval until ctx is done. When notifications cannot be set up the
// watcher polls only.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Scan(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	kick := make(chan struct{}, 1)
	trigger := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fsw.Add(w.config.Dir)
		if err != nil {
			fsw.Close()
		}
	}
	if err != nil {
		w.logger.Warn("filesystem notifications unavailable, polling only", "error", err)
	} else {
		g.Go(func() error {
			defer fsw.Close()
			return w.watch(ctx, fsw, trigger)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.config.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			case <-kick:
			}
			if err := w.Scan(); err != nil {
				w.logger.Warn("bundle scan failed", "error", err)
			}
		}
	})

	return g.Wait()
}

func (w *Watcher) watch(ctx context.Context, fsw *fsnotify.Watcher, trigger func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watch error", "error", err)
		}
	}
}
