package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/plugin"
	"github.com/earlink/earlink-go/pkg/simulator"
)

func connected(t *testing.T, v *plugin.Vendor, preset string) (plugin.Plugin, *simulator.Headset) {
	t.Helper()
	sim, err := simulator.FromPreset(preset)
	require.NoError(t, err)
	generic := plugin.New(v, plugin.Config{})
	p := generic.Specialize(sim.Device())

	conn := channel.NewConn(sim.Device().Address, channel.TypeStream, sim, channel.Config{Timeout: 100 * time.Millisecond})
	require.NoError(t, conn.Open(context.Background()))
	require.NoError(t, p.Connect(context.Background(), conn))
	t.Cleanup(func() { p.Disconnect() })
	return p, sim
}

func TestCaptureSkipsUnsupported(t *testing.T) {
	ctx := context.Background()
	p, _ := connected(t, plugin.Bose(), "qc35ii")
	require.NoError(t, plugin.SetNoiseCancellation(ctx, p, "low"))
	require.NoError(t, plugin.SetAutoOff(ctx, p, "40"))

	s, err := Capture(ctx, p, "dev")
	require.NoError(t, err)
	assert.Equal(t, "low", *s.NoiseCancellation)
	assert.Equal(t, "40", *s.AutoOff)
	assert.NotNil(t, s.VoicePrompts)
	assert.Nil(t, s.AmbientSound)
	assert.Nil(t, s.EqualizerPreset)
}

func TestRestoreSkipsUnsupported(t *testing.T) {
	ctx := context.Background()
	p, _ := connected(t, plugin.Sony(), "wh1000xm4")

	s := &DeviceSettings{
		NoiseCancellation: ptr("off"),
		AmbientSound:      ptr(15),
		Language:          ptr("fr"),
	}
	require.NoError(t, Restore(ctx, p, s))

	nc, err := plugin.NoiseCancellation(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "off", nc)
	level, err := plugin.AmbientSound(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 15, level)
}

func TestRestoreCollectsFailures(t *testing.T) {
	ctx := context.Background()
	p, _ := connected(t, plugin.Sony(), "wh1000xm4")

	s := &DeviceSettings{
		NoiseCancellation: ptr("turbo"),
		AmbientSound:      ptr(99),
		EqualizerPreset:   ptr("bright"),
	}
	err := Restore(ctx, p, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrInvalidParameter))

	eq, err := plugin.EqualizerPreset(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "bright", eq)
}

func TestPersistAndApply(t *testing.T) {
	ctx := context.Background()
	store := NewStore(StoreConfig{Medium: NewFileMedium(t.TempDir())})

	p, sim := connected(t, plugin.Sony(), "wh1000xm3")
	require.NoError(t, plugin.SetAmbientSound(ctx, p, 4))
	require.NoError(t, store.Persist(ctx, p, sim.Device().Address))

	rec, err := store.Load(sim.Device().Address)
	require.NoError(t, err)
	v, ok := rec.Value(capability.AmbientSound)
	require.True(t, ok)
	assert.Equal(t, 4, v)

	require.NoError(t, plugin.SetAmbientSound(ctx, p, 18))
	require.NoError(t, store.Apply(ctx, p, sim.Device().Address))
	level, err := plugin.AmbientSound(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 4, level)

	assert.NoError(t, store.Apply(ctx, p, "unknown-device"))
}

func TestPersistMergesIntoStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := NewStore(StoreConfig{Medium: NewFileMedium(t.TempDir())})
	p, sim := connected(t, plugin.Sony(), "wh1000xm4")
	addr := sim.Device().Address

	require.NoError(t, store.Save(&DeviceSettings{
		EqualizerPreset: ptr("vocal"),
		AmbientSound:    ptr(3),
		Extensions:      map[string]string{"nickname": "work"},
	}, addr))

	require.NoError(t, plugin.SetAmbientSound(ctx, p, 9))
	require.NoError(t, store.Persist(ctx, p, addr))

	rec, err := store.Load(addr)
	require.NoError(t, err)
	assert.Equal(t, 9, *rec.AmbientSound)
	require.NotNil(t, rec.EqualizerPreset)
	assert.Equal(t, map[string]string{"nickname": "work"}, rec.Extensions)

	t.Run("UnreadableCapabilitiesKeepStoredValues", func(t *testing.T) {
		require.NoError(t, store.Save(&DeviceSettings{
			EqualizerPreset: ptr("vocal"),
			Extensions:      map[string]string{"nickname": "work"},
		}, addr))
		sim.SetMute(true)
		defer sim.SetMute(false)

		assert.Error(t, store.Persist(ctx, p, addr))

		rec, err := store.Load(addr)
		require.NoError(t, err)
		require.NotNil(t, rec.EqualizerPreset)
		assert.Equal(t, "vocal", *rec.EqualizerPreset)
		assert.Equal(t, "work", rec.Extensions["nickname"])
	})
}

func TestPersistLeavesNewerRecordAlone(t *testing.T) {
	ctx := context.Background()
	medium := NewFileMedium(t.TempDir())
	store := NewStore(StoreConfig{Medium: medium})
	p, sim := connected(t, plugin.Sony(), "wh1000xm3")
	key := SanitizeID(sim.Device().Address)

	newer := []byte(`{"version": 7, "ambientSound": 2}`)
	require.NoError(t, medium.Write(key, newer))

	err := store.Persist(ctx, p, sim.Device().Address)
	assert.Equal(t, fault.KindMigrationFailed, fault.KindOf(err))

	data, err := medium.Read(key)
	require.NoError(t, err)
	assert.Equal(t, newer, data)
}

func TestCaptureNotConnected(t *testing.T) {
	p := plugin.New(plugin.Sony(), plugin.Config{})
	_, err := Capture(context.Background(), p, "dev")
	assert.True(t, errors.Is(err, fault.ErrNotConnected))
}
