package log

import (
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a CBOR capture file. A new or empty file
// starts with a Header record. It is safe for concurrent use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	enc    *cbor.Encoder
	header *Header
	closed bool
	count  int
}

var _ Logger = (*FileLogger)(nil)

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	l := &FileLogger{file: f, enc: NewEncoder(f)}
	if info.Size() == 0 {
		h := newHeader(time.Now())
		if err := l.enc.Encode(h); err != nil {
			f.Close()
			return nil, err
		}
		l.header = &h
	}
	return l, nil
}

// Header returns the header this logger wrote, or nil when it appended to
// an existing capture.
func (l *FileLogger) Header() *Header {
	return l.header
}

// Log appends ev. Write failures are dropped so that capture never
// disturbs the connection being captured.
func (l *FileLogger) Log(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.enc.Encode(ev) == nil {
		l.count++
	}
}

// Count returns the number of events written since open.
func (l *FileLogger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close flushes and closes the file. Later Log calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
