package connection

import (
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/plugin"
)

// Observer receives connection notifications. Calls are made from the
// goroutine that caused them and must not block.
type Observer interface {
	// DeviceDiscovered reports a device seen by discovery.
	DeviceDiscovered(dev *match.ObservedDevice)

	// Connected reports a completed connection.
	Connected(dev *match.ObservedDevice, p plugin.Plugin)

	// Disconnected reports a closed connection. err is nil for requested
	// disconnects and the transport's reason for unexpected closure.
	Disconnected(dev *match.ObservedDevice, err error)

	// ConnectionFailed reports a connect that gave up.
	ConnectionFailed(dev *match.ObservedDevice, err error)

	// StateChanged reports a state machine transition.
	StateChanged(oldState, newState State)
}

// NopObserver ignores every notification. Embed it to implement part of
// Observer.
type NopObserver struct{}

func (NopObserver) DeviceDiscovered(*match.ObservedDevice) {}
func (NopObserver) Connected(*match.ObservedDevice, plugin.Plugin) {}
func (NopObserver) Disconnected(*match.ObservedDevice, error) {}
func (NopObserver) ConnectionFailed(*match.ObservedDevice, error) {}
func (NopObserver) StateChanged(State, State) {}

var _ Observer = NopObserver{}

// MultiObserver fans notifications out to several observers.
type MultiObserver []Observer

var _ Observer = MultiObserver(nil)

func (m MultiObserver) DeviceDiscovered(dev *match.ObservedDevice) {
	for _, o := range m {
		o.DeviceDiscovered(dev)
	}
}

func (m MultiObserver) Connected(dev *match.ObservedDevice, p plugin.Plugin) {
	for _, o := range m {
		o.Connected(dev, p)
	}
}

func (m MultiObserver) Disconnected(dev *match.ObservedDevice, err error) {
	for _, o := range m {
		o.Disconnected(dev, err)
	}
}

func (m MultiObserver) ConnectionFailed(dev *match.ObservedDevice, err error) {
	for _, o := range m {
		o.ConnectionFailed(dev, err)
	}
}

func (m MultiObserver) StateChanged(oldState, newState State) {
	for _, o := range m {
		o.StateChanged(oldState, newState)
	}
}
