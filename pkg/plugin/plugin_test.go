package plugin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/match"
	"github.com/earlink/earlink-go/pkg/simulator"
)

func connectPreset(t *testing.T, v *Vendor, preset string) (*Headset, *simulator.Headset) {
	t.Helper()
	sim, err := simulator.FromPreset(preset)
	require.NoError(t, err)

	generic := New(v, Config{})
	_, ok := generic.CanHandle(sim.Device())
	require.True(t, ok)
	p := generic.Specialize(sim.Device()).(*Headset)

	conn := channel.NewConn(sim.Device().Address, channel.TypeStream, sim, channel.Config{Timeout: 50 * time.Millisecond})
	require.NoError(t, conn.Open(context.Background()))
	require.NoError(t, p.Connect(context.Background(), conn))
	return p, sim
}

func TestBuiltinVendorsValidate(t *testing.T) {
	for _, v := range []*Vendor{Bose(), Sony()} {
		t.Run(v.ID, func(t *testing.T) {
			require.NoError(t, v.Validate())
			for _, id := range New(v, Config{}).Identifiers() {
				assert.True(t, id.HasCriteria())
				assert.NotEmpty(t, id.Model)
			}
		})
	}
}

func TestModelValidate(t *testing.T) {
	t.Run("UnencodableOption", func(t *testing.T) {
		m := Model{Tag: "x", Codec: codec.BMAPv1, Capabilities: map[capability.ID]capability.ValueType{
			capability.NoiseCancellation: capability.Discrete("off", "medium"),
		}}
		assert.Equal(t, fault.KindValidationFailed, fault.KindOf(m.Validate()))
	})

	t.Run("CapabilityWithoutCommand", func(t *testing.T) {
		m := Model{Tag: "x", Codec: codec.MDRv1, Capabilities: map[capability.ID]capability.ValueType{
			capability.Language: capability.Discrete("en"),
		}}
		assert.Equal(t, fault.KindValidationFailed, fault.KindOf(m.Validate()))
	})

	t.Run("UnknownCodec", func(t *testing.T) {
		m := Model{Tag: "x", Capabilities: map[capability.ID]capability.ValueType{capability.Battery: batteryLevel}}
		assert.Error(t, m.Validate())
	})

	t.Run("DuplicateModel", func(t *testing.T) {
		v := Bose()
		v.Models = append(v.Models, v.Models[0])
		assert.Error(t, v.Validate())
	})
}

func TestCanHandle(t *testing.T) {
	bose := New(Bose(), Config{})
	sony := New(Sony(), Config{})

	t.Run("ExactModel", func(t *testing.T) {
		dev := &match.ObservedDevice{Address: "04:52:C7:11:22:33", VendorID: "0x009e", ProductID: "0x4020", ServiceUUIDs: []string{"febe"}}
		score, ok := bose.CanHandle(dev)
		require.True(t, ok)
		assert.Equal(t, 95, score)
		assert.Equal(t, "qc35ii", bose.DetectedModel())

		_, ok = sony.CanHandle(dev)
		assert.False(t, ok)
	})

	t.Run("StrictThreshold", func(t *testing.T) {
		// Service UUID + name + MAC prefix = 28, under Sony's 60.
		dev := &match.ObservedDevice{Address: "38:18:4C:00:00:01", Name: "WH-1000XM4", ServiceUUIDs: []string{SonyServiceUUID}}
		_, ok := sony.CanHandle(dev)
		assert.False(t, ok)
		assert.Equal(t, match.StrictThreshold, sony.Threshold())
	})
}

func TestSpecialize(t *testing.T) {
	bose := New(Bose(), Config{})
	dev := &match.ObservedDevice{VendorID: BoseCompanyID, ProductID: "0x4024", ServiceUUIDs: []string{BoseServiceUUID}}

	p := bose.Specialize(dev).(*Headset)
	assert.NotSame(t, bose, p)
	assert.Equal(t, "bose", p.ID())
	assert.Equal(t, "Bose Noise Cancelling Headphones 700", p.DisplayName())
	assert.Equal(t, "nc700", p.DetectedModel())
	assert.Same(t, p, p.Specialize(dev))

	unknown := &match.ObservedDevice{Name: "Speaker"}
	assert.Same(t, bose, bose.Specialize(unknown))
}

func TestNotConnected(t *testing.T) {
	p := New(Sony(), Config{})
	_, err := p.Get(context.Background(), capability.Battery)
	assert.Equal(t, fault.KindNotConnected, fault.KindOf(err))
	assert.Equal(t, fault.KindNotConnected, fault.KindOf(p.Set(context.Background(), capability.NoiseCancellation, "on")))
	assert.NoError(t, p.Disconnect())
}

func TestConnectRequiresOpenChannel(t *testing.T) {
	p := New(Bose(), Config{})
	sim, err := simulator.FromPreset("qc35")
	require.NoError(t, err)
	conn := channel.NewConn("x", channel.TypeStream, sim, channel.Config{})
	assert.Equal(t, fault.KindConnectionFailed, fault.KindOf(p.Connect(context.Background(), conn)))
}

func TestCapabilities(t *testing.T) {
	p, _ := connectPreset(t, Sony(), "wf1000xm4")
	caps := p.Capabilities()
	require.Len(t, caps, len(capability.All))

	supported := map[capability.ID]bool{}
	for _, c := range caps {
		supported[c.ID] = c.Supported
	}
	assert.True(t, supported[capability.AmbientSound])
	assert.False(t, supported[capability.AutoOff])
	assert.False(t, supported[capability.Language])
	assert.True(t, Supports(p, capability.EqualizerPreset))
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()

	t.Run("Bose", func(t *testing.T) {
		p, _ := connectPreset(t, Bose(), "qc35ii")

		level, err := BatteryLevel(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 80, level)

		require.NoError(t, SetNoiseCancellation(ctx, p, "LOW"))
		mode, err := NoiseCancellation(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "low", mode)

		require.NoError(t, SetLanguage(ctx, p, "ja"))
		require.NoError(t, SetVoicePrompts(ctx, p, false))
		lang, err := Language(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "ja", lang)
		on, err := VoicePrompts(ctx, p)
		require.NoError(t, err)
		assert.False(t, on)

		paired, err := PairedDevices(ctx, p)
		require.NoError(t, err)
		assert.Len(t, paired, 1)
	})

	t.Run("Sony", func(t *testing.T) {
		p, _ := connectPreset(t, Sony(), "wh1000xm3")

		require.NoError(t, SetAmbientSound(ctx, p, 12))
		level, err := AmbientSound(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, 12, level)

		require.NoError(t, SetNoiseCancellation(ctx, p, "wind"))
		require.NoError(t, SetEqualizerPreset(ctx, p, "vocal"))
		eq, err := EqualizerPreset(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "vocal", eq)
	})
}

func TestDomainsDifferPerModel(t *testing.T) {
	ctx := context.Background()

	xm4, _ := connectPreset(t, Sony(), "wh1000xm4")
	err := SetNoiseCancellation(ctx, xm4, "wind")
	assert.Equal(t, fault.KindInvalidParameter, fault.KindOf(err))

	qc35, _ := connectPreset(t, Bose(), "qc35")
	err = SetNoiseCancellation(ctx, qc35, "low")
	assert.Equal(t, fault.KindInvalidParameter, fault.KindOf(err))
	_, err = ButtonAction(ctx, qc35)
	assert.Equal(t, fault.KindUnsupportedCommand, fault.KindOf(err))
}

func TestUnsupportedAndReadOnly(t *testing.T) {
	ctx := context.Background()
	p, _ := connectPreset(t, Sony(), "wh1000xm4")

	_, err := p.Get(ctx, capability.Language)
	assert.Equal(t, fault.KindUnsupportedCommand, fault.KindOf(err))

	err = p.Set(ctx, capability.Battery, 50)
	assert.Equal(t, fault.KindUnsupportedCommand, fault.KindOf(err))

	err = SetAmbientSound(ctx, p, 25)
	assert.Equal(t, fault.KindInvalidParameter, fault.KindOf(err))
}

func TestDegradedResponse(t *testing.T) {
	p, sim := connectPreset(t, Bose(), "nc700")
	sim.SetCorrupt(true)

	mode, err := NoiseCancellation(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "off", mode)
}

func TestTimeoutSurfaces(t *testing.T) {
	p, sim := connectPreset(t, Sony(), "wh1000xm4")
	sim.SetMute(true)

	_, err := BatteryLevel(context.Background(), p)
	assert.Equal(t, fault.KindCommandTimeout, fault.KindOf(err))
}

func TestDisconnect(t *testing.T) {
	p, sim := connectPreset(t, Bose(), "qc35ii")
	require.True(t, p.IsConnected())

	require.NoError(t, p.Disconnect())
	assert.False(t, p.IsConnected())
	assert.False(t, sim.IsOpen())

	_, err := BatteryLevel(context.Background(), p)
	assert.Equal(t, fault.KindNotConnected, fault.KindOf(err))
}

func TestSharedPromptByteSurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	sim, err := simulator.FromPreset("qc35ii")
	require.NoError(t, err)

	session := func() *Headset {
		generic := New(Bose(), Config{})
		_, ok := generic.CanHandle(sim.Device())
		require.True(t, ok)
		p := generic.Specialize(sim.Device()).(*Headset)
		conn := channel.NewConn(sim.Device().Address, channel.TypeStream, sim, channel.Config{Timeout: 50 * time.Millisecond})
		require.NoError(t, conn.Open(ctx))
		require.NoError(t, p.Connect(ctx, conn))
		return p
	}

	p := session()
	require.NoError(t, SetLanguage(ctx, p, "de"))
	require.NoError(t, SetVoicePrompts(ctx, p, false))
	require.NoError(t, p.Disconnect())

	p = session()
	require.NoError(t, SetLanguage(ctx, p, "fr"))
	require.NoError(t, p.Disconnect())

	p = session()
	on, err := VoicePrompts(ctx, p)
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, p.Disconnect())
	p = session()
	require.NoError(t, SetVoicePrompts(ctx, p, true))
	lang, err := Language(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "fr", lang)
}

func TestFailureTracker(t *testing.T) {
	tr := NewFailureTracker()
	assert.NoError(t, tr.Check("bose"))

	tr.MarkUnrecoverable("bose", fault.New(fault.KindPluginCrashed, ""))
	assert.True(t, tr.IsUnrecoverable("bose"))
	assert.Equal(t, fault.KindUnrecoverable, fault.KindOf(tr.Check("bose")))
	assert.Equal(t, []string{"bose"}, tr.Marked())

	tr.Reset("bose")
	assert.False(t, tr.IsUnrecoverable("bose"))

	tr.MarkUnrecoverable("sony", nil)
	tr.ResetAll()
	assert.Empty(t, tr.Marked())
}
