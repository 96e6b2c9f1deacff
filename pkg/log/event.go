package log

import "time"

// Event is one protocol capture record.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies one connect..disconnect span (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates byte flow relative to the host.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// DeviceAddress is the headset address. Captures are local files, so the
	// raw address is kept; user-facing errors never carry it.
	DeviceAddress string `cbor:"6,keyasint,omitempty"`

	// PluginID is the plugin that owned the connection.
	PluginID string `cbor:"7,keyasint,omitempty"`

	// Model is the detected model tag.
	Model string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Channel layer
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"` // Plugin layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of byte flow.
type Direction uint8

const (
	// DirectionIn indicates bytes received from the headset.
	DirectionIn Direction = 0
	// DirectionOut indicates bytes sent to the headset.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerChannel is the transport layer (raw frames).
	LayerChannel Layer = 0
	// LayerPlugin is the capability layer (decoded values).
	LayerPlugin Layer = 1
	// LayerConnection is the connection manager.
	LayerConnection Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerChannel:
		return "CHANNEL"
	case LayerPlugin:
		return "PLUGIN"
	case LayerConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates raw bytes on a channel.
	CategoryFrame Category = 0
	// CategoryCommand indicates a capability get or set.
	CategoryCommand Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameData is the number of frame bytes kept in a FrameEvent.
const MaxFrameData = 256

// FrameEvent captures raw bytes at the channel layer.
type FrameEvent struct {
	// Size is the frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Dropped marks bytes that arrived with no request waiting.
	Dropped bool `cbor:"4,keyasint,omitempty"`
}

// NewFrameEvent copies data into a FrameEvent, truncating at MaxFrameData.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data)}
	if len(data) > MaxFrameData {
		fe.Data = append([]byte(nil), data[:MaxFrameData]...)
		fe.Truncated = true
	} else {
		fe.Data = append([]byte(nil), data...)
	}
	return fe
}

// CommandEvent captures a decoded capability operation.
type CommandEvent struct {
	// Op distinguishes get from set.
	Op CommandOp `cbor:"1,keyasint"`

	// Capability is the capability id.
	Capability string `cbor:"2,keyasint"`

	// Codec is the codec version tag.
	Codec string `cbor:"3,keyasint,omitempty"`

	// Value is the value written or read.
	Value any `cbor:"4,keyasint,omitempty"`

	// Degraded is set when the value is a default substituted for an
	// unusable response.
	Degraded bool `cbor:"5,keyasint,omitempty"`

	// Duration from send to response. Stored as nanoseconds.
	Duration *time.Duration `cbor:"6,keyasint,omitempty"`
}

// CommandOp is a capability operation.
type CommandOp uint8

const (
	// CommandGet reads a capability.
	CommandGet CommandOp = 0
	// CommandSet writes a capability.
	CommandSet CommandOp = 1
)

// String returns the operation name.
func (o CommandOp) String() string {
	switch o {
	case CommandGet:
		return "GET"
	case CommandSet:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and plugin lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection manager state change.
	StateEntityConnection StateEntity = 0
	// StateEntityChannel indicates a channel open/close.
	StateEntityChannel StateEntity = 1
	// StateEntityPlugin indicates plugin activation.
	StateEntityPlugin StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityPlugin:
		return "PLUGIN"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Kind is the error kind name (if classified).
	Kind string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
