package plugin

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/log"
	"github.com/earlink/earlink-go/pkg/match"
)

// Config configures a Headset.
type Config struct {
	// Timeout is the per-command timeout (0 uses the channel default).
	Timeout time.Duration

	// Logger for operational messages. Nil disables logging.
	Logger *slog.Logger
}

// Headset is the data-driven plugin shared by every vendor. A vendor-wide
// Headset considers all of the vendor's models; a specialized one only the
// model it was narrowed to.
type Headset struct {
	vendor *Vendor
	id     string
	name   string
	models []Model
	config Config
	logger *slog.Logger

	mu        sync.Mutex
	detected  *Model
	connected bool
	ch        channel.Channel
	codec     codec.Codec
	model     *Model
	capture   *log.Session
}

// New creates a vendor-wide plugin. The vendor must be valid; see
// Vendor.Validate.
func New(v *Vendor, cfg Config) *Headset {
	models := make([]Model, len(v.Models))
	for i, m := range v.Models {
		models[i] = m.compile()
	}
	return newHeadset(v, v.ID, v.DisplayName, models, cfg)
}

func newHeadset(v *Vendor, id, name string, models []Model, cfg Config) *Headset {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Headset{
		vendor: v,
		id:     id,
		name:   name,
		models: models,
		config: cfg,
		logger: logger.With("plugin", id),
	}
}

// ID returns the plugin id.
func (h *Headset) ID() string { return h.id }

// DisplayName returns the user-facing name.
func (h *Headset) DisplayName() string { return h.name }

// Vendor returns the vendor description.
func (h *Headset) Vendor() *Vendor { return h.vendor }

// Identifiers returns every model's identifiers.
func (h *Headset) Identifiers() []match.Identifier {
	var out []match.Identifier
	for _, m := range h.models {
		out = append(out, m.Identifiers...)
	}
	return out
}

// ChannelTypes returns the vendor's transport preference.
func (h *Headset) ChannelTypes() []channel.Type {
	if len(h.vendor.Channels) == 0 {
		return defaultChannels
	}
	return slices.Clone(h.vendor.Channels)
}

// Threshold returns the minimum accepted match score.
func (h *Headset) Threshold() int { return h.vendor.threshold() }

// Validate checks the vendor description the plugin was built from.
func (h *Headset) Validate() error { return h.vendor.Validate() }

// CanHandle scores dev against every identifier, keeps the best, and
// records the model it belongs to.
func (h *Headset) CanHandle(dev *match.ObservedDevice) (int, bool) {
	best, ok := match.BestMatchWithThreshold(dev, h.Identifiers(), h.Threshold())
	if !ok {
		return 0, false
	}
	h.mu.Lock()
	h.detected = h.findModel(best.Identifier.Model)
	h.mu.Unlock()
	return best.Score, true
}

// DetectedModel returns the tag recorded by the last successful CanHandle,
// or the connected model.
func (h *Headset) DetectedModel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		return h.model.Tag
	}
	if h.detected != nil {
		return h.detected.Tag
	}
	return ""
}

func (h *Headset) findModel(tag string) *Model {
	for i := range h.models {
		if h.models[i].Tag == tag {
			return &h.models[i]
		}
	}
	return nil
}

// Specialize returns a plugin narrowed to the model dev matches best. It
// returns h itself when h already serves one model or nothing matches.
func (h *Headset) Specialize(dev *match.ObservedDevice) Plugin {
	if len(h.models) == 1 {
		return h
	}
	best, ok := match.BestMatchWithThreshold(dev, h.Identifiers(), h.Threshold())
	if !ok {
		return h
	}
	m := h.findModel(best.Identifier.Model)
	if m == nil {
		return h
	}
	s := newHeadset(h.vendor, h.id, h.vendor.DisplayName+" "+m.DisplayName, []Model{*m}, h.config)
	s.detected = &s.models[0]
	return s
}

// SetCapture sets the capture session for subsequent commands.
func (h *Headset) SetCapture(s *log.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.capture = s
}

// Connect binds ch and selects the codec of the detected model. When no
// model was detected the vendor's first model is used.
func (h *Headset) Connect(ctx context.Context, ch channel.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch == nil || !ch.IsOpen() {
		return fault.New(fault.KindConnectionFailed, "")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	m := h.detected
	if m == nil {
		m = &h.models[0]
		h.logger.Warn("no model detected, using fallback", "model", m.Tag)
	}
	c, err := codec.New(m.Codec)
	if err != nil {
		return fault.Wrap(fault.KindUnrecoverable, err, "")
	}

	h.ch = ch
	h.codec = c
	h.model = m
	h.connected = true
	h.capture.SetPlugin(h.id, m.Tag)
	h.logger.Info("connected", "model", m.Tag, "codec", m.Codec.String())
	return nil
}

// Disconnect closes the channel and clears connection state.
func (h *Headset) Disconnect() error {
	h.mu.Lock()
	ch := h.ch
	h.ch = nil
	h.codec = nil
	h.model = nil
	h.connected = false
	h.mu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}

// IsConnected reports whether a channel is bound.
func (h *Headset) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

// Capabilities describes every capability for the connected model, the
// detected model, or the fallback model, in that order.
func (h *Headset) Capabilities() []capability.Config {
	h.mu.Lock()
	m := h.model
	if m == nil {
		m = h.detected
	}
	if m == nil {
		m = &h.models[0]
	}
	h.mu.Unlock()

	out := make([]capability.Config, 0, len(capability.All))
	for _, id := range capability.All {
		vt, ok := m.Capabilities[id]
		cfg := capability.NewConfig(id, vt)
		cfg.Supported = ok
		if ok {
			cfg.Metadata = map[string]string{"codec": m.Codec.String(), "model": m.Tag}
			if id.ReadOnly() {
				cfg.Metadata["readOnly"] = "true"
			}
		}
		out = append(out, cfg)
	}
	return out
}

// session snapshots the connection for one command.
type session struct {
	ch      channel.Channel
	codec   codec.Codec
	model   *Model
	capture *log.Session
}

func (h *Headset) session(id capability.ID) (session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected {
		return session{}, fault.ErrNotConnected
	}
	if !h.model.Supports(id) {
		return session{}, fault.Newf(fault.KindUnsupportedCommand, "%s is not supported by %s", id.DisplayName(), h.model.DisplayName)
	}
	return session{ch: h.ch, codec: h.codec, model: h.model, capture: h.capture}, nil
}

// Get reads a capability. Unusable responses yield the capability's safe
// default; the diagnostic is logged and captured.
func (h *Headset) Get(ctx context.Context, id capability.ID) (any, error) {
	s, err := h.session(id)
	if err != nil {
		return nil, err
	}
	frame, err := s.codec.EncodeQuery(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := s.ch.SendCommand(ctx, frame, s.codec.ResponsePrefix(id), h.config.Timeout)
	if err != nil {
		s.capture.Error(log.LayerPlugin, err, "get "+string(id))
		return nil, err
	}
	value, diag := s.codec.Decode(id, reply)
	elapsed := time.Since(start)

	s.capture.Command(log.CommandEvent{
		Op:         log.CommandGet,
		Capability: string(id),
		Codec:      s.codec.Version().String(),
		Value:      value,
		Degraded:   diag != nil,
		Duration:   &elapsed,
	})
	if diag != nil {
		s.capture.Error(log.LayerPlugin, diag.Err(), "decode "+string(id))
		if diag.Kind == fault.KindCommandRejected {
			return nil, diag.Err()
		}
		h.logger.Warn("degraded response", "capability", id, "reason", diag.Reason)
	}
	return value, nil
}

// Set writes a capability after validating v against the model's domain.
func (h *Headset) Set(ctx context.Context, id capability.ID, v any) error {
	s, err := h.session(id)
	if err != nil {
		return err
	}
	if id.ReadOnly() {
		return fault.Newf(fault.KindUnsupportedCommand, "%s is read-only", id.DisplayName())
	}
	value, err := s.model.Capabilities[id].Validate(v)
	if err != nil {
		return fault.Wrap(fault.KindInvalidParameter, err, "")
	}
	if rbw, ok := s.codec.(codec.ReadBeforeWriter); ok && rbw.ReadBeforeWrite(id) {
		if _, err := h.Get(ctx, id); err != nil {
			return err
		}
		if rbw.ReadBeforeWrite(id) {
			return fault.Newf(fault.KindInvalidResponse, "current %s could not be read", id.DisplayName())
		}
	}
	frame, err := s.codec.Encode(id, value)
	if err != nil {
		return err
	}

	start := time.Now()
	reply, err := s.ch.SendCommand(ctx, frame, s.codec.ResponsePrefix(id), h.config.Timeout)
	if err != nil {
		s.capture.Error(log.LayerPlugin, err, "set "+string(id))
		return err
	}
	elapsed := time.Since(start)

	_, diag := s.codec.Decode(id, reply)
	s.capture.Command(log.CommandEvent{
		Op:         log.CommandSet,
		Capability: string(id),
		Codec:      s.codec.Version().String(),
		Value:      value,
		Degraded:   diag != nil,
		Duration:   &elapsed,
	})
	if diag != nil {
		if diag.Kind == fault.KindCommandRejected {
			return diag.Err()
		}
		h.logger.Debug("unconfirmed write", "capability", id, "reason", diag.Reason)
	}
	return nil
}

var (
	_ Plugin      = (*Headset)(nil)
	_ Specializer = (*Headset)(nil)
	_ Capturer    = (*Headset)(nil)
)
