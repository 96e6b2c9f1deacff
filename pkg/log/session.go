package log

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/earlink/earlink-go/pkg/fault"
)

// Session stamps events with one connection's identity before forwarding
// them. A nil *Session discards everything, so components can hold one
// unconditionally.
type Session struct {
	logger  Logger
	id      string
	address string

	mu     sync.RWMutex
	plugin string
	model  string
	now    func() time.Time
}

// NewSession starts a capture session with a fresh connection id.
func NewSession(logger Logger, address string) *Session {
	return &Session{
		logger:  OrNoop(logger),
		id:      uuid.NewString(),
		address: address,
		now:     time.Now,
	}
}

// ID returns the connection id.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// SetPlugin records the plugin and model for subsequent events.
func (s *Session) SetPlugin(pluginID, model string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.plugin, s.model = pluginID, model
	s.mu.Unlock()
}

func (s *Session) event(dir Direction, layer Layer, cat Category) Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Event{
		Timestamp:     s.now(),
		ConnectionID:  s.id,
		Direction:     dir,
		Layer:         layer,
		Category:      cat,
		DeviceAddress: s.address,
		PluginID:      s.plugin,
		Model:         s.model,
	}
}

// Frame records raw channel bytes.
func (s *Session) Frame(dir Direction, data []byte, dropped bool) {
	if s == nil {
		return
	}
	ev := s.event(dir, LayerChannel, CategoryFrame)
	ev.Frame = NewFrameEvent(data)
	ev.Frame.Dropped = dropped
	s.logger.Log(ev)
}

// Command records a decoded capability operation.
func (s *Session) Command(cmd CommandEvent) {
	if s == nil {
		return
	}
	dir := DirectionIn
	if cmd.Op == CommandSet {
		dir = DirectionOut
	}
	ev := s.event(dir, LayerPlugin, CategoryCommand)
	ev.Command = &cmd
	s.logger.Log(ev)
}

// State records a state transition.
func (s *Session) State(entity StateEntity, oldState, newState, reason string) {
	if s == nil {
		return
	}
	ev := s.event(DirectionIn, LayerConnection, CategoryState)
	if entity == StateEntityChannel {
		ev.Layer = LayerChannel
	}
	ev.StateChange = &StateChangeEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	s.logger.Log(ev)
}

// Error records a failure. Errors carrying a fault kind keep its name.
func (s *Session) Error(layer Layer, err error, context string) {
	if s == nil || err == nil {
		return
	}
	ev := s.event(DirectionIn, layer, CategoryError)
	ev.Error = &ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Context: context,
	}
	if fe := fault.As(err); fe != nil {
		ev.Error.Kind = fe.Kind.String()
	}
	s.logger.Log(ev)
}
