package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter forwards capture events to an slog.Logger at debug level,
// for running without a capture file.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

var _ Logger = (*SlogAdapter)(nil)

// Log writes ev as one "capture" record.
func (a *SlogAdapter) Log(ev Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.String("conn", ev.ConnectionID),
		slog.String("dir", ev.Direction.String()),
		slog.String("layer", ev.Layer.String()),
		slog.String("category", ev.Category.String()),
	}
	attrs = appendNonEmpty(attrs, "device", ev.DeviceAddress)
	attrs = appendNonEmpty(attrs, "plugin", ev.PluginID)
	attrs = appendNonEmpty(attrs, "model", ev.Model)

	switch {
	case ev.Frame != nil:
		fr := ev.Frame
		attrs = append(attrs, slog.Int("size", fr.Size), slog.String("bytes", hex.EncodeToString(fr.Data)))
		attrs = appendFlag(attrs, "truncated", fr.Truncated)
		attrs = appendFlag(attrs, "dropped", fr.Dropped)
	case ev.Command != nil:
		cmd := ev.Command
		attrs = append(attrs,
			slog.String("op", cmd.Op.String()),
			slog.String("capability", cmd.Capability),
			slog.Any("value", cmd.Value),
		)
		attrs = appendNonEmpty(attrs, "codec", cmd.Codec)
		attrs = appendFlag(attrs, "degraded", cmd.Degraded)
		if cmd.Duration != nil {
			attrs = append(attrs, slog.Duration("took", *cmd.Duration))
		}
	case ev.StateChange != nil:
		sc := ev.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState),
		)
		attrs = appendNonEmpty(attrs, "reason", sc.Reason)
	case ev.Error != nil:
		e := ev.Error
		attrs = append(attrs, slog.String("error", e.Message), slog.String("where", e.Layer.String()))
		attrs = appendNonEmpty(attrs, "context", e.Context)
		attrs = appendNonEmpty(attrs, "kind", e.Kind)
	}

	a.logger.LogAttrs(ctx, slog.LevelDebug, "capture", attrs...)
}

func appendNonEmpty(attrs []slog.Attr, key, v string) []slog.Attr {
	if v == "" {
		return attrs
	}
	return append(attrs, slog.String(key, v))
}

func appendFlag(attrs []slog.Attr, key string, v bool) []slog.Attr {
	if !v {
		return attrs
	}
	return append(attrs, slog.Bool(key, true))
}
