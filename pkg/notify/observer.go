package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/earlink/earlink-go/pkg/connection"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/plugin"
)

// Event types, used as the last topic segment.
const (
	EventDiscovered   = "discovered"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventFailed       = "failed"
	EventState        = "state"
)

// Device is the device part of a payload.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Message is the JSON payload of every event.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Device    *Device   `json:"device,omitempty"`
	Plugin    string    `json:"plugin,omitempty"`
	State     string    `json:"state,omitempty"`
	Previous  string    `json:"previous,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
}

// ObserverConfig configures an Observer.
type ObserverConfig struct {
	// TopicPrefix roots every topic (default: "earlink").
	TopicPrefix string

	// QoS for every publish.
	QoS byte

	// Now is the clock (default: time.Now).
	Now func() time.Time

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Observer publishes connection notifications.
type Observer struct {
	pub    Publisher
	config ObserverConfig
	logger *slog.Logger
}

var _ connection.Observer = (*Observer)(nil)

// NewObserver creates an observer publishing through pub.
func NewObserver(pub Publisher, cfg ObserverConfig) *Observer {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "earlink"
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Observer{pub: pub, config: cfg, logger: logger}
}

func (o *Observer) DeviceDiscovered(dev *match.ObservedDevice) {
	o.event(Message{Type: EventDiscovered, Device: device(dev)})
}

func (o *Observer) Connected(dev *match.ObservedDevice, p plugin.Plugin) {
	msg := Message{Type: EventConnected, Device: device(dev)}
	if p != nil {
		msg.Plugin = p.ID()
	}
	o.event(msg)
	o.deviceState(dev, connection.StateConnected)
}

func (o *Observer) Disconnected(dev *match.ObservedDevice, err error) {
	o.event(withError(Message{Type: EventDisconnected, Device: device(dev)}, err))
	o.deviceState(dev, connection.StateDisconnected)
}

func (o *Observer) ConnectionFailed(dev *match.ObservedDevice, err error) {
	o.event(withError(Message{Type: EventFailed, Device: device(dev)}, err))
	o.deviceState(dev, connection.StateDisconnected)
}

func (o *Observer) StateChanged(oldState, newState connection.State) {
	msg := Message{Type: EventState, State: newState.String(), Previous: oldState.String()}
	o.event(msg)
	o.publish(o.config.TopicPrefix+"/state", true, msg)
}

func (o *Observer) event(msg Message) {
	o.publish(o.config.TopicPrefix+"/event/"+msg.Type, false, msg)
}

func (o *Observer) deviceState(dev *match.ObservedDevice, st connection.State) {
	if dev == nil || dev.Address == "" {
		return
	}
	topic := o.config.TopicPrefix + "/device/" + topicSegment(dev.Address) + "/state"
	o.publish(topic, true, Message{Type: EventState, Device: device(dev), State: st.String()})
}

func (o *Observer) publish(topic string, retained bool, msg Message) {
	msg.Timestamp = o.config.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		o.logger.Warn("encode notification", "topic", topic, "error", err)
		return
	}
	if err := o.pub.Publish(topic, o.config.QoS, retained, data); err != nil {
		o.logger.Warn("publish notification", "topic", topic, "error", err)
	}
}

func device(dev *match.ObservedDevice) *Device {
	if dev == nil {
		return nil
	}
	return &Device{Address: dev.Address, Name: dev.Name}
}

func withError(msg Message, err error) Message {
	if err == nil {
		return msg
	}
	msg.Error = err.Error()
	msg.ErrorKind = fault.KindOf(err).String()
	return msg
}

// topicSegment makes s safe as a single topic level.
func topicSegment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_", ":", "").Replace(s)
}

func statusTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/status"
}

func statusPayload(clientID, status, reason string) []byte {
	data, _ := json.Marshal(struct {
		Status    string `json:"status"`
		ClientID  string `json:"clientId"`
		Reason    string `json:"reason,omitempty"`
		Timestamp string `json:"timestamp"`
	}{status, clientID, reason, time.Now().UTC().Format(time.RFC3339)})
	return data
}
