package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize bounds type byte plus payload. Headset protocol
	// frames are far smaller.
	DefaultMaxFrameSize = 4096
)

// Framing errors.
var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFrameEmpty     = errors.New("frame is empty")
	ErrFrameTruncated = errors.New("frame truncated")
)

// FrameType identifies a frame.
type FrameType uint8

const (
	FrameOpen       FrameType = 0x01
	FrameOpenResult FrameType = 0x02
	FrameData       FrameType = 0x03
	FrameClose      FrameType = 0x04
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameOpen:
		return "OPEN"
	case FrameOpenResult:
		return "OPEN_RESULT"
	case FrameData:
		return "DATA"
	case FrameClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("FRAME(0x%02X)", uint8(t))
	}
}

// Frame is one decoded frame.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// FrameWriter writes frames. It is safe for concurrent use.
type FrameWriter struct {
	w   io.Writer
	max uint32
	mu  sync.Mutex
}

// NewFrameWriter creates a frame writer with the default size limit.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w, max: DefaultMaxFrameSize}
}

// WriteFrame writes one frame. The prefix, type and payload go out in a
// single Write so concurrent writers never interleave.
func (fw *FrameWriter) WriteFrame(t FrameType, payload []byte) error {
	n := uint32(len(payload)) + 1
	if n > fw.max {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, fw.max)
	}
	buf := make([]byte, LengthPrefixSize+int(n))
	binary.BigEndian.PutUint32(buf, n)
	buf[LengthPrefixSize] = byte(t)
	copy(buf[LengthPrefixSize+1:], payload)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(buf); err != nil {
		return fmt.Errorf("write %s frame: %w", t, err)
	}
	return nil
}

// FrameReader reads frames. It is not safe for concurrent use.
type FrameReader struct {
	r         io.Reader
	max       uint32
	lengthBuf [LengthPrefixSize]byte
}

// NewFrameReader creates a frame reader with the default size limit.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, max: DefaultMaxFrameSize}
}

// ReadFrame reads one frame. It returns io.EOF when the stream ends on a
// frame boundary.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	if _, err := io.ReadFull(fr.r, fr.lengthBuf[:]); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrFrameTruncated
		}
		return Frame{}, fmt.Errorf("read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(fr.lengthBuf[:])
	if n == 0 {
		return Frame{}, ErrFrameEmpty
	}
	if n > fr.max {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, fr.max)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return Frame{}, ErrFrameTruncated
		}
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}
	return Frame{Type: FrameType(body[0]), Payload: body[1:]}, nil
}
