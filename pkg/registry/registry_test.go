package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/plugin"
	"github.com/earlink/earlink-go/pkg/simulator"
)

// fakePlugin scores every device with a fixed score.
type fakePlugin struct {
	id       string
	name     string
	ids      []match.Identifier
	channels []channel.Type
	score    int

	mu          sync.Mutex
	connected   bool
	disconnects int
}

func newFake(id string, score int) *fakePlugin {
	return &fakePlugin{
		id:       id,
		name:     "Fake " + id,
		ids:      []match.Identifier{{NamePattern: "fake", ConfidenceScore: 90}},
		channels: []channel.Type{channel.TypeStream},
		score:    score,
	}
}

func (f *fakePlugin) ID() string                        { return f.id }
func (f *fakePlugin) DisplayName() string               { return f.name }
func (f *fakePlugin) Identifiers() []match.Identifier   { return f.ids }
func (f *fakePlugin) ChannelTypes() []channel.Type      { return f.channels }
func (f *fakePlugin) Capabilities() []capability.Config { return nil }
func (f *fakePlugin) CanHandle(*match.ObservedDevice) (int, bool) {
	return f.score, f.score >= match.DefaultThreshold
}

func (f *fakePlugin) Connect(context.Context, channel.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakePlugin) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fault.ErrNotConnected
	}
	f.connected = false
	f.disconnects++
	return nil
}

func (f *fakePlugin) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePlugin) Get(context.Context, capability.ID) (any, error) { return nil, fault.ErrUnsupported }
func (f *fakePlugin) Set(context.Context, capability.ID, any) error   { return fault.ErrUnsupported }

var _ plugin.Plugin = (*fakePlugin)(nil)

func TestRegisterCount(t *testing.T) {
	r := New(Config{})
	require.NoError(t, r.Register(newFake("a", 60)))
	assert.Equal(t, 1, r.Count())
	require.NoError(t, r.Register(newFake("b", 60)))
	assert.Equal(t, 2, r.Count())

	err := r.Register(newFake("a", 70))
	assert.Equal(t, fault.KindRegistrationFailed, fault.KindOf(err))
	assert.Equal(t, 2, r.Count())

	p, ok := r.Plugin("b")
	require.True(t, ok)
	assert.Equal(t, "b", p.ID())
	ids := []string{}
	for _, p := range r.Plugins() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakePlugin)
	}{
		{"empty id", func(f *fakePlugin) { f.id = "" }},
		{"empty display name", func(f *fakePlugin) { f.name = "" }},
		{"no identifiers", func(f *fakePlugin) { f.ids = nil }},
		{"identifier without criteria", func(f *fakePlugin) { f.ids = []match.Identifier{{ConfidenceScore: 50}} }},
		{"confidence out of range", func(f *fakePlugin) { f.ids[0].ConfidenceScore = 101 }},
		{"no channel types", func(f *fakePlugin) { f.channels = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{})
			f := newFake("x", 60)
			tt.mutate(f)
			err := r.Register(f)
			assert.Equal(t, fault.KindValidationFailed, fault.KindOf(err))
			assert.Equal(t, 0, r.Count())
		})
	}
}

func TestRegisterInvalidVendor(t *testing.T) {
	v := plugin.Bose()
	v.Models[0].Capabilities = map[capability.ID]capability.ValueType{
		capability.NoiseCancellation: capability.Discrete("off", "turbo"),
	}
	r := New(Config{})
	err := r.Register(plugin.New(v, plugin.Config{}))
	assert.Equal(t, fault.KindValidationFailed, fault.KindOf(err))
	assert.Equal(t, 0, r.Count())
}

func TestUnregister(t *testing.T) {
	r := New(Config{})
	require.NoError(t, r.Register(newFake("a", 60)))

	err := r.Unregister("missing")
	assert.Equal(t, fault.KindPluginNotFound, fault.KindOf(err))

	require.NoError(t, r.Unregister("a"))
	assert.Equal(t, 0, r.Count())
}

func TestFindPluginHighestScore(t *testing.T) {
	r := New(Config{})
	require.NoError(t, r.Register(newFake("low", 55)))
	require.NoError(t, r.Register(newFake("high", 80)))
	require.NoError(t, r.Register(newFake("none", 10)))

	p, err := r.FindPlugin(&match.ObservedDevice{Name: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "high", p.ID())
}

func TestFindPluginTieKeepsEarliest(t *testing.T) {
	r := New(Config{})
	require.NoError(t, r.Register(newFake("first", 70)))
	require.NoError(t, r.Register(newFake("second", 70)))

	p, err := r.FindPlugin(&match.ObservedDevice{Name: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "first", p.ID())
}

func TestFindPluginNoMatch(t *testing.T) {
	r := New(Config{})
	require.NoError(t, r.Register(newFake("none", 10)))
	_, err := r.FindPlugin(&match.ObservedDevice{Name: "fake"})
	assert.True(t, errors.Is(err, fault.ErrPluginNotFound))
}

func TestFindPluginSpecializesAndCaches(t *testing.T) {
	r := New(Config{})
	for _, p := range plugin.Builtin(plugin.Config{}) {
		require.NoError(t, r.Register(p))
	}
	sim, err := simulator.FromPreset("wh1000xm3")
	require.NoError(t, err)

	p1, err := r.FindPlugin(sim.Device())
	require.NoError(t, err)
	h, ok := p1.(*plugin.Headset)
	require.True(t, ok)
	assert.Equal(t, "sony", h.ID())
	assert.Equal(t, "wh1000xm3", h.DetectedModel())

	p2, err := r.FindPlugin(sim.Device())
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	other, err := simulator.FromPreset("wh1000xm4")
	require.NoError(t, err)
	p3, err := r.FindPlugin(other.Device())
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
}

func TestActivateExclusive(t *testing.T) {
	r := New(Config{})
	a, b := newFake("a", 60), newFake("b", 60)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	var events []Event
	r.OnEvent(func(ev Event) { events = append(events, ev) })

	require.NoError(t, a.Connect(context.Background(), nil))
	require.NoError(t, r.Activate(a))
	assert.Same(t, a, r.Active())

	require.NoError(t, r.Activate(b))
	assert.Same(t, b, r.Active())
	assert.False(t, a.IsConnected())
	assert.Equal(t, 1, a.disconnects)

	require.Len(t, events, 3)
	assert.Equal(t, EventActivated, events[0].Type)
	assert.Equal(t, Event{Type: EventDeactivated, PluginID: "a"}, events[1])
	assert.Equal(t, Event{Type: EventActivated, PluginID: "b"}, events[2])

	r.Deactivate()
	assert.Nil(t, r.Active())
}

func TestActivateUnregistered(t *testing.T) {
	r := New(Config{})
	err := r.Activate(newFake("ghost", 60))
	assert.Equal(t, fault.KindPluginNotFound, fault.KindOf(err))
	assert.Nil(t, r.Active())
}

func TestActivePluginCannotBeRemoved(t *testing.T) {
	r := New(Config{})
	a := newFake("a", 60)
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Activate(a))

	assert.ErrorIs(t, r.Unregister("a"), ErrPluginActive)
	assert.ErrorIs(t, r.Replace("a", newFake("a", 70)), ErrPluginActive)
	assert.Equal(t, 1, r.Count())

	r.Deactivate()
	require.NoError(t, r.Unregister("a"))
}

func TestConcurrentActivation(t *testing.T) {
	r := New(Config{})
	plugins := make([]*fakePlugin, 8)
	for i := range plugins {
		plugins[i] = newFake(string(rune('a'+i)), 60)
		require.NoError(t, r.Register(plugins[i]))
	}

	var wg sync.WaitGroup
	for _, p := range plugins {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Connect(context.Background(), nil)
			_ = r.Activate(p)
		}()
	}
	wg.Wait()

	active := r.Active()
	require.NotNil(t, active)
	connected := 0
	for _, p := range plugins {
		if p.IsConnected() {
			connected++
			assert.Same(t, active, plugin.Plugin(p))
		}
	}
	assert.LessOrEqual(t, connected, 1)
}
