package log

import (
	"path/filepath"
	"testing"
	"time"
)

func createTestLogFile(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.elog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test log: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()
	return path
}

func TestReaderFilters(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, ConnectionID: "c1", DeviceAddress: "AA:BB:CC:DD:EE:FF", PluginID: "bose",
			Direction: DirectionOut, Layer: LayerChannel, Category: CategoryFrame, Frame: NewFrameEvent([]byte{1})},
		{Timestamp: base.Add(time.Second), ConnectionID: "c1", DeviceAddress: "AA:BB:CC:DD:EE:FF", PluginID: "bose",
			Direction: DirectionIn, Layer: LayerPlugin, Category: CategoryCommand,
			Command: &CommandEvent{Op: CommandGet, Capability: "battery"}},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "c2", DeviceAddress: "11:22:33:44:55:66", PluginID: "sony",
			Direction: DirectionIn, Layer: LayerPlugin, Category: CategoryCommand,
			Command: &CommandEvent{Op: CommandSet, Capability: "noiseCancellation", Value: "on"}},
	}
	path := createTestLogFile(t, events)

	out := DirectionOut
	command := CategoryCommand
	end := base.Add(2 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"c1", "c1", "c2"}},
		{"connection", Filter{ConnectionID: "c2"}, []string{"c2"}},
		{"direction", Filter{Direction: &out}, []string{"c1"}},
		{"category", Filter{Category: &command}, []string{"c1", "c2"}},
		{"address case-insensitive", Filter{DeviceAddress: "aa:bb:cc:dd:ee:ff"}, []string{"c1", "c1"}},
		{"plugin", Filter{PluginID: "sony"}, []string{"c2"}},
		{"capability", Filter{Capability: "battery"}, []string{"c1"}},
		{"time end exclusive", Filter{TimeEnd: &end}, []string{"c1", "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			got, err := reader.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, e := range got {
				if e.ConnectionID != tt.want[i] {
					t.Errorf("event %d: got %q, want %q", i, e.ConnectionID, tt.want[i])
				}
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.elog")); err == nil {
		t.Error("expected error for missing file")
	}
}
