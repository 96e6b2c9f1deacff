package settings

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/plugin"
)

// Capture reads every persisted capability from p. Unsupported
// capabilities are skipped; other failures are collected and returned with
// whatever was read.
func Capture(ctx context.Context, p plugin.Plugin, deviceID string) (*DeviceSettings, error) {
	s := &DeviceSettings{Version: SchemaVersion, DeviceID: deviceID}
	var errs error
	for _, id := range Persisted() {
		if !plugin.Supports(p, id) {
			continue
		}
		v, err := p.Get(ctx, id)
		if errors.Is(err, fault.ErrUnsupported) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("get %s: %w", id, err))
			continue
		}
		if !s.SetValue(id, v) {
			errs = multierr.Append(errs, fmt.Errorf("get %s: unexpected value %T", id, v))
		}
	}
	return s, errs
}

// Restore writes every value s holds to p. Unsupported capabilities are
// skipped; other failures are collected.
func Restore(ctx context.Context, p plugin.Plugin, s *DeviceSettings) error {
	if s == nil {
		return nil
	}
	var errs error
	for _, id := range Persisted() {
		v, ok := s.Value(id)
		if !ok {
			continue
		}
		err := p.Set(ctx, id, v)
		if err == nil || errors.Is(err, fault.ErrUnsupported) {
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("set %s: %w", id, err))
	}
	return errs
}

// Persist captures p's settings and merges them into the record for
// deviceID. Captured values replace stored ones; fields that could not be
// read and Extensions keep their stored values. A record that cannot be
// loaded (a newer schema, a medium failure) is left untouched.
func (st *Store) Persist(ctx context.Context, p plugin.Plugin, deviceID string) error {
	captured, captureErr := Capture(ctx, p, deviceID)
	rec, err := st.Load(deviceID)
	if err != nil {
		return multierr.Append(captureErr, fmt.Errorf("load existing settings: %w", err))
	}
	if rec == nil {
		rec = captured
	} else {
		for _, id := range Persisted() {
			if v, ok := captured.Value(id); ok {
				rec.SetValue(id, v)
			}
		}
	}
	if err := st.Save(rec, deviceID); err != nil {
		return multierr.Append(captureErr, err)
	}
	return captureErr
}

// Apply loads the record for deviceID and restores it to p. It does
// nothing when no record exists.
func (st *Store) Apply(ctx context.Context, p plugin.Plugin, deviceID string) error {
	s, err := st.Load(deviceID)
	if err != nil || s == nil {
		return err
	}
	return Restore(ctx, p, s)
}
