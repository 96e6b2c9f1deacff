package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earlink/earlink-go/internal/config"
	"github.com/earlink/earlink-go/pkg/connection"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/simulator"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Settings.Path = filepath.Join(t.TempDir(), "settings")
	cfg.Connection.BaseDelay = 5 * time.Millisecond
	cfg.Connection.MaxDelay = 10 * time.Millisecond
	cfg.Connection.CommandTimeout = time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts options) (*app, *shell, *bytes.Buffer) {
	t.Helper()
	a, err := newApp(cfg, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	var out bytes.Buffer
	return a, newShell(a, &out), &out
}

// execLine executes one shell line and returns what it printed.
func execLine(t *testing.T, sh *shell, out *bytes.Buffer, line string) string {
	t.Helper()
	out.Reset()
	require.True(t, sh.Execute(context.Background(), line))
	return out.String()
}

func TestShellSimulatedSession(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "session.elog")
	a, sh, out := newTestApp(t, testConfig(t), options{Simulate: []string{"qc35ii", "wh1000xm4"}, Capture: capture})

	devices := execLine(t, sh, out, "devices")
	assert.Contains(t, devices, "Bose QC35 II")
	assert.Contains(t, devices, "38:18:4C:00:00:04")
	assert.Contains(t, devices, "sony")

	assert.Contains(t, execLine(t, sh, out, "get battery"), "Not connected")
	assert.Contains(t, execLine(t, sh, out, "connect WH-1000XM4"), "Connected via")
	assert.Equal(t, connection.StateConnected, a.manager.State())
	assert.Contains(t, execLine(t, sh, out, "status"), "State:   CONNECTED")

	assert.Contains(t, execLine(t, sh, out, "get noiseCancellation"), "noiseCancellation = on")
	assert.Contains(t, execLine(t, sh, out, "set ambientSound 12"), "OK")
	assert.Contains(t, execLine(t, sh, out, "get ambientSound"), "ambientSound = 12")
	assert.Contains(t, execLine(t, sh, out, "set ambientSound loud"), "Invalid value")
	assert.Contains(t, execLine(t, sh, out, "set battery 50"), "Set failed")
	assert.Equal(t, 1, a.reporter.Count(fault.KindUnsupportedCommand))
	assert.Contains(t, execLine(t, sh, out, "caps"), "ambientSound")

	assert.Contains(t, execLine(t, sh, out, "sim battery 2 42"), "OK")
	assert.Contains(t, execLine(t, sh, out, "get battery"), "battery = 42")

	assert.Contains(t, execLine(t, sh, out, "sim drop 2"), "OK")
	assert.Eventually(t, func() bool { return a.manager.State() == connection.StateDisconnected },
		time.Second, 5*time.Millisecond)

	assert.Contains(t, execLine(t, sh, out, "disconnect"), "Disconnected")
	assert.Positive(t, a.capture.Count())
}

func TestShellCommands(t *testing.T) {
	_, sh, out := newTestApp(t, testConfig(t), options{Simulate: []string{"qc35"}})

	assert.Contains(t, execLine(t, sh, out, "help"), "connect <n|addr>")
	assert.Contains(t, execLine(t, sh, out, "frobnicate"), "Unknown command: frobnicate")
	assert.Contains(t, execLine(t, sh, out, "connect 9"), "no device #9")
	assert.Contains(t, execLine(t, sh, out, "connect"), "Usage")
	assert.Contains(t, execLine(t, sh, out, "bridges"), "simulator")
	plugins := execLine(t, sh, out, "plugins")
	assert.Contains(t, plugins, "bose")
	assert.Contains(t, plugins, "sony")
	assert.Empty(t, execLine(t, sh, out, "   "))

	out.Reset()
	assert.False(t, sh.Execute(context.Background(), "quit"))
}

func TestBridgeEndToEnd(t *testing.T) {
	remote, _, _ := newTestApp(t, testConfig(t), options{Simulate: []string{"wh1000xm4"}})
	srv, err := remote.serveBridge(context.Background(), "127.0.0.1:0", "")
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop() })

	preset, err := simulator.FromPreset("wh1000xm4")
	require.NoError(t, err)
	dev := preset.Device()

	cfg := testConfig(t)
	cfg.Bridge.Static = []config.StaticBridge{{
		Name: "desk", Host: "127.0.0.1", Port: srv.Addr().(*net.TCPAddr).Port, Channels: []string{"stream"},
	}}
	cfg.Devices = []config.DeviceConfig{{
		Address: strings.ToLower(dev.Address), Name: dev.Name, VendorID: dev.VendorID, ProductID: dev.ProductID,
	}}
	a, sh, out := newTestApp(t, cfg, options{})

	assert.Contains(t, execLine(t, sh, out, "bridges"), "desk")
	assert.Contains(t, execLine(t, sh, out, "connect 1"), "Connected via")
	assert.Equal(t, 1, srv.SessionCount())
	assert.Contains(t, execLine(t, sh, out, "set ambientSound 8"), "OK")
	assert.Contains(t, execLine(t, sh, out, "get ambientSound"), "ambientSound = 8")

	a.manager.Disconnect()
	assert.Eventually(t, func() bool { return srv.SessionCount() == 0 }, time.Second, 5*time.Millisecond)

	stored, err := a.store.Load(dev.Address)
	require.NoError(t, err)
	v, ok := stored.Value("ambientSound")
	require.True(t, ok)
	assert.EqualValues(t, 8, v)
}

func TestServeBridgeNeedsSimulator(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t), options{})
	_, err := a.serveBridge(context.Background(), "127.0.0.1:0", "")
	assert.Error(t, err)
}

func TestResolveUnknownAddress(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig(t), options{})
	dev, err := a.Resolve("aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", dev.Address)
	assert.Len(t, a.Devices(), 1)

	_, err = a.Resolve("nobody")
	assert.Error(t, err)
}

func TestPresets(t *testing.T) {
	assert.Nil(t, presets(""))
	assert.Len(t, presets("all"), len(simulator.Presets))
	assert.Equal(t, []string{"qc35", "nc700"}, presets("qc35, nc700,"))
}

func TestNewAppRejectsUnknownPreset(t *testing.T) {
	a, err := newApp(testConfig(t), options{Simulate: []string{"airpods"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestNewAppStartupFailures(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("SettingsDatabase", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Settings.Backend = "sqlite"
		cfg.Settings.Path = filepath.Join(t.TempDir(), "missing", "dir", "settings.db")
		var a *app
		var err error
		require.NotPanics(t, func() { a, err = newApp(cfg, options{Simulate: []string{"qc35ii"}}, discard) })
		assert.ErrorContains(t, err, "open settings database")
		assert.Nil(t, a)
	})

	t.Run("PresetAfterDatabaseOpened", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Settings.Backend = "sqlite"
		cfg.Settings.Path = filepath.Join(t.TempDir(), "settings.db")
		var a *app
		var err error
		require.NotPanics(t, func() { a, err = newApp(cfg, options{Simulate: []string{"qc35ii", "airpods"}}, discard) })
		assert.Error(t, err)
		assert.Nil(t, a)
	})
}
