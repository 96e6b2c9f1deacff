package log

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero fields match everything; set fields
// must all match.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// DeviceAddress is compared case-insensitively.
	DeviceAddress string
	PluginID      string

	// Capability only matches command events.
	Capability string
}

// Match reports whether ev passes the filter.
func (f Filter) Match(ev Event) bool {
	switch {
	case f.ConnectionID != "" && ev.ConnectionID != f.ConnectionID:
	case f.Direction != nil && ev.Direction != *f.Direction:
	case f.Layer != nil && ev.Layer != *f.Layer:
	case f.Category != nil && ev.Category != *f.Category:
	case f.TimeStart != nil && ev.Timestamp.Before(*f.TimeStart):
	case f.TimeEnd != nil && !ev.Timestamp.Before(*f.TimeEnd):
	case f.DeviceAddress != "" && !strings.EqualFold(ev.DeviceAddress, f.DeviceAddress):
	case f.PluginID != "" && ev.PluginID != f.PluginID:
	case f.Capability != "" && (ev.Command == nil || ev.Command.Capability != f.Capability):
	default:
		return true
	}
	return false
}

// Reader streams events from a capture.
type Reader struct {
	src     io.Closer
	dec     *cbor.Decoder
	filter  Filter
	header  *Header
	pending *Event
}

// NewReader opens a capture file and reads every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file and reads only events passing
// filter. A capture written by a newer format fails with ErrCaptureFormat.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{src: f, dec: NewDecoder(f), filter: filter}

	h, ev, err := r.record()
	switch {
	case errors.Is(err, io.EOF):
	case err != nil:
		f.Close()
		return nil, err
	case h != nil:
		r.header = h
	default:
		r.pending = &ev
	}
	return r, nil
}

// Header returns the capture header, or nil for captures without one.
func (r *Reader) Header() *Header {
	return r.header
}

func (r *Reader) record() (*Header, Event, error) {
	var raw cbor.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		return nil, Event{}, err
	}
	return decodeRecord(raw)
}

// Next returns the next matching event, or io.EOF at the end of the capture.
// Headers of concatenated captures are skipped.
func (r *Reader) Next() (Event, error) {
	for {
		var ev Event
		if r.pending != nil {
			ev, r.pending = *r.pending, nil
		} else {
			h, next, err := r.record()
			if err != nil {
				return Event{}, err
			}
			if h != nil {
				continue
			}
			ev = next
		}
		if r.filter.Match(ev) {
			return ev, nil
		}
	}
}

// ReadAll returns every remaining matching event. Events decoded before an
// error are returned with it.
func (r *Reader) ReadAll() ([]Event, error) {
	var events []Event
	for {
		ev, err := r.Next()
		switch {
		case errors.Is(err, io.EOF):
			return events, nil
		case err != nil:
			return events, err
		}
		events = append(events, ev)
	}
}

// Close closes the capture file.
func (r *Reader) Close() error {
	return r.src.Close()
}
