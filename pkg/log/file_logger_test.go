package log

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-123",
		Direction:    DirectionOut,
		Layer:        LayerChannel,
		Category:     CategoryFrame,
		Frame:        NewFrameEvent([]byte{0x01, 0x06, 0x02, 0x01, 0x03}),
	}

	logger.Log(event)
	if logger.Count() != 1 {
		t.Errorf("Count: got %d, want 1", logger.Count())
	}
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	if h := reader.Header(); h == nil || h.Magic != CaptureMagic || h.Format != CaptureFormat {
		t.Fatalf("Header: got %+v", h)
	}

	decoded, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if decoded.ConnectionID != event.ConnectionID {
		t.Errorf("ConnectionID: got %q, want %q", decoded.ConnectionID, event.ConnectionID)
	}
	if decoded.Frame == nil || decoded.Frame.Size != 5 {
		t.Fatalf("Frame: got %+v", decoded.Frame)
	}
	if decoded.Frame.Data[4] != 0x03 {
		t.Errorf("Frame.Data[4]: got 0x%02X, want 0x03", decoded.Frame.Data[4])
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elog")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: "conn", Category: CategoryState,
			StateChange: &StateChangeEvent{NewState: "CONNECTED"}})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestFileLoggerClosedIgnoresEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	logger.Log(Event{ConnectionID: "late"})
	if logger.Count() != 0 {
		t.Errorf("Count after close: got %d, want 0", logger.Count())
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Log(Event{Timestamp: time.Now(), ConnectionID: "conn", Frame: NewFrameEvent([]byte{byte(j)})})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 100 {
		t.Errorf("got %d events, want 100", len(events))
	}
}

func TestFileLoggerHeaderOnlyOnNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.elog")

	first, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if first.Header() == nil {
		t.Fatal("new capture has no header")
	}
	first.Log(Event{ConnectionID: "a"})
	first.Close()

	second, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if second.Header() != nil {
		t.Error("appending logger wrote a second header")
	}
	second.Close()
}

func TestReaderHeaderlessCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.elog")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := NewEncoder(f)
	for _, id := range []string{"a", "b"} {
		if err := enc.Encode(Event{ConnectionID: id}); err != nil {
			t.Fatal(err)
		}
	}
	f.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	if reader.Header() != nil {
		t.Errorf("Header: got %+v, want nil", reader.Header())
	}
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 || events[0].ConnectionID != "a" {
		t.Errorf("events: got %+v", events)
	}
}

func TestReaderRejectsNewerFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.elog")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	h := newHeader(time.Now())
	h.Format = CaptureFormat + 1
	if err := NewEncoder(f).Encode(h); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := NewReader(path); !errors.Is(err, ErrCaptureFormat) {
		t.Errorf("NewReader: got %v, want ErrCaptureFormat", err)
	}
}

func TestReaderSkipsConcatenatedHeaders(t *testing.T) {
	dir := t.TempDir()
	var data []byte
	for _, id := range []string{"a", "b"} {
		part := filepath.Join(dir, id+".elog")
		logger, err := NewFileLogger(part)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{ConnectionID: id})
		logger.Close()
		b, err := os.ReadFile(part)
		if err != nil {
			t.Fatal(err)
		}
		data = append(data, b...)
	}
	joined := filepath.Join(dir, "joined.elog")
	if err := os.WriteFile(joined, data, 0o644); err != nil {
		t.Fatal(err)
	}

	reader, err := NewReader(joined)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	events, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}
