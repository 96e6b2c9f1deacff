package log

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlink/earlink-go/pkg/fault"
)

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestSessionStampsEvents(t *testing.T) {
	capture := &captureLogger{}
	s := NewSession(capture, "AA:BB:CC:DD:EE:FF")
	require.NotEmpty(t, s.ID())

	s.Frame(DirectionOut, []byte{0x02, 0x02, 0x01, 0x00}, false)
	s.SetPlugin("bose", "qc35ii")
	s.Command(CommandEvent{Op: CommandSet, Capability: "noiseCancellation", Value: "high"})
	s.State(StateEntityConnection, "CONNECTING", "CONNECTED", "")
	s.Error(LayerPlugin, fault.New(fault.KindCommandTimeout, ""), "get battery")
	s.Error(LayerPlugin, nil, "ignored")

	require.Len(t, capture.events, 4)
	for _, e := range capture.events {
		assert.Equal(t, s.ID(), e.ConnectionID)
		assert.Equal(t, "AA:BB:CC:DD:EE:FF", e.DeviceAddress)
	}

	assert.Empty(t, capture.events[0].PluginID)
	assert.Equal(t, CategoryFrame, capture.events[0].Category)
	assert.Equal(t, 4, capture.events[0].Frame.Size)

	assert.Equal(t, "bose", capture.events[1].PluginID)
	assert.Equal(t, "qc35ii", capture.events[1].Model)
	assert.Equal(t, DirectionOut, capture.events[1].Direction)

	assert.Equal(t, "CONNECTED", capture.events[2].StateChange.NewState)
	assert.Equal(t, fault.KindCommandTimeout.String(), capture.events[3].Error.Kind)
}

func TestNilSessionIsSafe(t *testing.T) {
	var s *Session
	assert.Empty(t, s.ID())
	s.SetPlugin("x", "y")
	s.Frame(DirectionIn, []byte{1}, true)
	s.Command(CommandEvent{})
	s.State(StateEntityChannel, "", "OPEN", "")
	s.Error(LayerChannel, errors.New("boom"), "")
}

func TestFrameEventTruncates(t *testing.T) {
	fe := NewFrameEvent(bytes.Repeat([]byte{0xAB}, MaxFrameData+10))
	assert.True(t, fe.Truncated)
	assert.Len(t, fe.Data, MaxFrameData)
	assert.Equal(t, MaxFrameData+10, fe.Size)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewMultiLogger(NewSlogAdapter(logger), nil).Log(Event{
		ConnectionID: "c1",
		Category:     CategoryCommand,
		PluginID:     "sony",
		Command:      &CommandEvent{Op: CommandGet, Capability: "battery", Value: 70, Degraded: true},
	})

	out := buf.String()
	for _, want := range []string{"msg=capture", "conn=c1", "op=GET", "capability=battery", "degraded=true", "plugin=sony"} {
		assert.True(t, strings.Contains(out, want), "missing %q in %q", want, out)
	}
}

func TestEventEncodingRoundTrip(t *testing.T) {
	data, err := EncodeEvent(Event{
		ConnectionID: "c1",
		Category:     CategoryError,
		Error:        &ErrorEventData{Layer: LayerConnection, Message: "failed", Kind: "CONNECTION_FAILED"},
	})
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	require.NotNil(t, ev.Error)
	assert.Equal(t, LayerConnection, ev.Error.Layer)
	assert.Equal(t, "CONNECTION_FAILED", ev.Error.Kind)
}
