package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Capture file identification.
const (
	CaptureMagic  = "earlink-capture"
	CaptureFormat = 1
)

// ErrCaptureFormat is returned when a capture was written by a newer format.
var ErrCaptureFormat = errors.New("unsupported capture format")

// Header is the first record of a capture file. Its key 0 never appears in
// an Event, which is how readers tell the two apart. Captures written
// before headers existed start directly with an event.
type Header struct {
	Magic   string    `cbor:"0,keyasint"`
	Format  int       `cbor:"1,keyasint"`
	Created time.Time `cbor:"2,keyasint"`
	Host    string    `cbor:"3,keyasint,omitempty"`
}

func newHeader(now time.Time) Header {
	host, _ := os.Hostname()
	return Header{Magic: CaptureMagic, Format: CaptureFormat, Created: now.UTC(), Host: host}
}

// Canonical key order with nanosecond RFC3339 times, so equal events encode
// to equal bytes.
var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	})
)

func mustEncMode(o cbor.EncOptions) cbor.EncMode {
	m, err := o.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture encoding: %v", err))
	}
	return m
}

func mustDecMode(o cbor.DecOptions) cbor.DecMode {
	m, err := o.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture decoding: %v", err))
	}
	return m
}

// EncodeEvent encodes one event.
func EncodeEvent(ev Event) ([]byte, error) {
	return encMode.Marshal(ev)
}

// DecodeEvent decodes one encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	err := decMode.Unmarshal(data, &ev)
	return ev, err
}

// NewEncoder returns a capture stream encoder writing to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a capture stream decoder reading from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// decodeRecord decodes one raw record as either a header or an event.
func decodeRecord(raw cbor.RawMessage) (*Header, Event, error) {
	var probe struct {
		Magic string `cbor:"0,keyasint"`
	}
	if err := decMode.Unmarshal(raw, &probe); err == nil && probe.Magic == CaptureMagic {
		var h Header
		if err := decMode.Unmarshal(raw, &h); err != nil {
			return nil, Event{}, err
		}
		if h.Format > CaptureFormat {
			return nil, Event{}, fmt.Errorf("%w %d", ErrCaptureFormat, h.Format)
		}
		return &h, Event{}, nil
	}
	ev, err := DecodeEvent(raw)
	return nil, ev, err
}
