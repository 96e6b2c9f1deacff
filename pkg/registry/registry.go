package registry

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/plugin"
)

// ErrPluginActive is returned when removing or replacing the active plugin.
var ErrPluginActive = fault.New(fault.KindRegistrationFailed, "plugin is active")

// EventType identifies a registry change.
type EventType uint8

const (
	EventAdded EventType = iota + 1
	EventRemoved
	EventUpdated
	EventActivated
	EventDeactivated
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "ADDED"
	case EventRemoved:
		return "REMOVED"
	case EventUpdated:
		return "UPDATED"
	case EventActivated:
		return "ACTIVATED"
	case EventDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// Event describes a registry change.
type Event struct {
	Type     EventType
	PluginID string
}

// EventHandler receives registry events.
type EventHandler func(Event)

// Config configures a Registry.
type Config struct {
	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Registry is the plugin catalog. It is safe for concurrent use.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	plugins  []plugin.Plugin
	special  map[string]plugin.Plugin
	active   plugin.Plugin
	handlers []EventHandler

	// activation serializes Activate and Deactivate so the previous plugin
	// is fully disconnected before another becomes active.
	activation sync.Mutex
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		logger:  logger,
		special: make(map[string]plugin.Plugin),
	}
}

// OnEvent registers an event handler.
func (r *Registry) OnEvent(handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

func (r *Registry) emit(ev Event) {
	r.mu.RLock()
	handlers := append([]EventHandler(nil), r.handlers...)
	r.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Validate checks p against the registration invariants. Plugins that
// implement Validate() error are also asked to validate themselves.
func Validate(p plugin.Plugin) error {
	if p == nil {
		return fault.New(fault.KindValidationFailed, "plugin is nil")
	}
	if p.ID() == "" {
		return fault.New(fault.KindValidationFailed, "plugin id is required")
	}
	if p.DisplayName() == "" {
		return fault.Newf(fault.KindValidationFailed, "plugin %s: display name is required", p.ID())
	}
	ids := p.Identifiers()
	if len(ids) == 0 {
		return fault.Newf(fault.KindValidationFailed, "plugin %s: no identifiers", p.ID())
	}
	for i, id := range ids {
		if err := id.Validate(); err != nil {
			return fault.Newf(fault.KindValidationFailed, "plugin %s: identifier %d: %v", p.ID(), i, err)
		}
	}
	if len(p.ChannelTypes()) == 0 {
		return fault.Newf(fault.KindValidationFailed, "plugin %s: no channel types", p.ID())
	}
	if v, ok := p.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			if fault.As(err) != nil {
				return err
			}
			return fault.Wrap(fault.KindValidationFailed, err, "plugin "+p.ID()+" failed validation")
		}
	}
	return nil
}

// Register adds p. Invalid plugins and duplicate ids are rejected without
// changing the catalog.
func (r *Registry) Register(p plugin.Plugin) error {
	if err := Validate(p); err != nil {
		return err
	}

	r.mu.Lock()
	if r.indexLocked(p.ID()) >= 0 {
		r.mu.Unlock()
		return fault.Newf(fault.KindRegistrationFailed, "plugin %s already registered", p.ID())
	}
	r.plugins = append(r.plugins, p)
	r.mu.Unlock()

	r.logger.Info("plugin registered", "plugin", p.ID())
	r.emit(Event{Type: EventAdded, PluginID: p.ID()})
	return nil
}

// Unregister removes the plugin with id. The active plugin cannot be
// removed.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	i := r.indexLocked(id)
	if i < 0 {
		r.mu.Unlock()
		return fault.Newf(fault.KindPluginNotFound, "plugin %s is not registered", id)
	}
	if r.active != nil && r.active.ID() == id {
		r.mu.Unlock()
		return ErrPluginActive
	}
	r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
	r.dropSpecializedLocked(id)
	r.mu.Unlock()

	r.logger.Info("plugin unregistered", "plugin", id)
	r.emit(Event{Type: EventRemoved, PluginID: id})
	return nil
}

// Replace unregisters oldID and registers p in one step. If p is invalid,
// conflicts with another plugin, or oldID is active, nothing changes.
func (r *Registry) Replace(oldID string, p plugin.Plugin) error {
	if err := Validate(p); err != nil {
		return err
	}

	r.mu.Lock()
	i := r.indexLocked(oldID)
	if i < 0 {
		r.mu.Unlock()
		return fault.Newf(fault.KindPluginNotFound, "plugin %s is not registered", oldID)
	}
	if r.active != nil && r.active.ID() == oldID {
		r.mu.Unlock()
		return ErrPluginActive
	}
	if j := r.indexLocked(p.ID()); j >= 0 && j != i {
		r.mu.Unlock()
		return fault.Newf(fault.KindRegistrationFailed, "plugin %s already registered", p.ID())
	}
	r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
	r.plugins = append(r.plugins, p)
	r.dropSpecializedLocked(oldID)
	r.mu.Unlock()

	r.logger.Info("plugin replaced", "old", oldID, "plugin", p.ID())
	r.emit(Event{Type: EventUpdated, PluginID: p.ID()})
	return nil
}

func (r *Registry) indexLocked(id string) int {
	for i, p := range r.plugins {
		if p.ID() == id {
			return i
		}
	}
	return -1
}

func (r *Registry) dropSpecializedLocked(id string) {
	for key, p := range r.special {
		if p.ID() == id {
			delete(r.special, key)
		}
	}
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]plugin.Plugin(nil), r.plugins...)
}

// Plugin returns the plugin with id.
func (r *Registry) Plugin(id string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexLocked(id); i >= 0 {
		return r.plugins[i], true
	}
	return nil, false
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// FindPlugin returns the plugin scoring dev highest. Plugins that can
// specialize are narrowed to the matched model; the specialized instance is
// cached so repeated lookups for the same model share it.
func (r *Registry) FindPlugin(dev *match.ObservedDevice) (plugin.Plugin, error) {
	var (
		best      plugin.Plugin
		bestScore int
	)
	for _, p := range r.Plugins() {
		score, ok := p.CanHandle(dev)
		if !ok {
			continue
		}
		if best == nil || score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return nil, fault.New(fault.KindPluginNotFound, "no plugin handles this device")
	}
	r.logger.Debug("plugin resolved", "plugin", best.ID(), "score", bestScore)
	return r.specialize(best, dev), nil
}

func (r *Registry) specialize(p plugin.Plugin, dev *match.ObservedDevice) plugin.Plugin {
	s, ok := p.(plugin.Specializer)
	if !ok {
		return p
	}
	narrowed := s.Specialize(dev)
	if narrowed == p {
		return p
	}
	key := p.ID()
	if m, ok := narrowed.(interface{ DetectedModel() string }); ok {
		key += "/" + m.DetectedModel()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// The plugin may have been unregistered while it was scored.
	if r.indexLocked(p.ID()) < 0 {
		return narrowed
	}
	if cached, ok := r.special[key]; ok {
		return cached
	}
	r.special[key] = narrowed
	return narrowed
}

// Activate makes p the active plugin. A different active plugin is
// deactivated and disconnected first.
func (r *Registry) Activate(p plugin.Plugin) error {
	if p == nil {
		return fault.New(fault.KindValidationFailed, "plugin is nil")
	}
	r.activation.Lock()
	defer r.activation.Unlock()

	r.mu.RLock()
	registered := r.indexLocked(p.ID()) >= 0
	prev := r.active
	r.mu.RUnlock()
	if !registered {
		return fault.Newf(fault.KindPluginNotFound, "plugin %s is not registered", p.ID())
	}
	if prev == p {
		return nil
	}
	if prev != nil {
		r.deactivate(prev)
	}

	r.mu.Lock()
	r.active = p
	r.mu.Unlock()
	r.logger.Info("plugin activated", "plugin", p.ID())
	r.emit(Event{Type: EventActivated, PluginID: p.ID()})
	return nil
}

// Deactivate clears the active plugin and disconnects it. It is a no-op
// when nothing is active.
func (r *Registry) Deactivate() {
	r.activation.Lock()
	defer r.activation.Unlock()

	r.mu.RLock()
	prev := r.active
	r.mu.RUnlock()
	if prev != nil {
		r.deactivate(prev)
	}
}

func (r *Registry) deactivate(p plugin.Plugin) {
	if p.IsConnected() {
		if err := p.Disconnect(); err != nil && !errors.Is(err, fault.ErrNotConnected) {
			r.logger.Warn("disconnect on deactivate failed", "plugin", p.ID(), "error", err)
		}
	}
	r.mu.Lock()
	if r.active == p {
		r.active = nil
	}
	r.mu.Unlock()
	r.logger.Info("plugin deactivated", "plugin", p.ID())
	r.emit(Event{Type: EventDeactivated, PluginID: p.ID()})
}

// Active returns the active plugin, or nil.
func (r *Registry) Active() plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}
