package plugin

import (
	"context"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/log"
	"github.com/earlink/earlink-go/pkg/match"
)

// Plugin is a handler for one headset family or model.
type Plugin interface {
	// ID returns the unique plugin id.
	ID() string

	// DisplayName returns the user-facing name.
	DisplayName() string

	// Identifiers returns the criteria recognising supported devices.
	Identifiers() []match.Identifier

	// ChannelTypes returns supported transport kinds in preference order.
	ChannelTypes() []channel.Type

	// CanHandle scores dev. It returns false below the plugin's threshold.
	CanHandle(dev *match.ObservedDevice) (int, bool)

	// Connect binds an open channel.
	Connect(ctx context.Context, ch channel.Channel) error

	// Disconnect closes the channel and clears connection state.
	Disconnect() error

	// IsConnected reports whether a channel is bound.
	IsConnected() bool

	// Capabilities describes every capability and whether it is supported.
	Capabilities() []capability.Config

	// Get reads a capability.
	Get(ctx context.Context, id capability.ID) (any, error)

	// Set writes a capability.
	Set(ctx context.Context, id capability.ID, v any) error
}

// Specializer is implemented by plugins that can narrow themselves to the
// model a device matched.
type Specializer interface {
	Specialize(dev *match.ObservedDevice) Plugin
}

// Capturer is implemented by plugins that record decoded commands.
type Capturer interface {
	SetCapture(s *log.Session)
}

// Supports reports whether p declares id as supported.
func Supports(p Plugin, id capability.ID) bool {
	for _, c := range p.Capabilities() {
		if c.ID == id {
			return c.Supported
		}
	}
	return false
}
