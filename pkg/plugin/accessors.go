package plugin

import (
	"context"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/fault"
)

// Typed accessors over Get and Set.

// BatteryLevel returns the battery charge in percent.
func BatteryLevel(ctx context.Context, p Plugin) (int, error) {
	return getAs[int](ctx, p, capability.Battery)
}

// NoiseCancellation returns the noise cancellation mode.
func NoiseCancellation(ctx context.Context, p Plugin) (string, error) {
	return getAs[string](ctx, p, capability.NoiseCancellation)
}

// SetNoiseCancellation sets the noise cancellation mode.
func SetNoiseCancellation(ctx context.Context, p Plugin, mode string) error {
	return p.Set(ctx, capability.NoiseCancellation, mode)
}

// SelfVoice returns the self voice level.
func SelfVoice(ctx context.Context, p Plugin) (string, error) {
	return getAs[string](ctx, p, capability.SelfVoice)
}

// SetSelfVoice sets the self voice level.
func SetSelfVoice(ctx context.Context, p Plugin, level string) error {
	return p.Set(ctx, capability.SelfVoice, level)
}

// AutoOff returns the auto-off timeout ("never" or minutes).
func AutoOff(ctx context.Context, p Plugin) (string, error) {
	return getAs[string](ctx, p, capability.AutoOff)
}

// SetAutoOff sets the auto-off timeout.
func SetAutoOff(ctx context.Context, p Plugin, timeout string) error {
	return p.Set(ctx, capability.AutoOff, timeout)
}

// Language returns the voice prompt language.
func Language(ctx context.Context, p Plugin) (string, error) {
	return getAs[string](ctx, p, capability.Language)
}

// SetLanguage sets the voice prompt language.
func SetLanguage(ctx context.Context, p Plugin, lang string) error {
	return p.Set(ctx, capability.Language, lang)
}

// VoicePrompts reports whether voice prompts are enabled.
func VoicePrompts(ctx context.Context, p Plugin) (bool, error) {
	return getAs[bool](ctx, p, capability.VoicePrompts)
}

// SetVoicePrompts enables or disables voice prompts.
func SetVoicePrompts(ctx context.Context, p Plugin, on bool) error {
	return p.Set(ctx, capability.VoicePrompts, on)
}

// PairedDevices returns the addresses of paired source devices.
func PairedDevices(ctx context.Context, p Plugin) ([]string, error) {
	return getAs[[]string](ctx, p, capability.PairedDevices)
}

// ButtonAction returns the action button assignment.
func ButtonAction(ctx context.Context, p Plugin) (string, error) {
	return getAs[string](ctx, p, capability.ButtonAction)
}

// SetButtonAction sets the action button assignment.
func SetButtonAction(ctx context.Context, p Plugin, action string) error {
	return p.Set(ctx, capability.ButtonAction, action)
}

// AmbientSound returns the ambient sound level.
func AmbientSound(ctx context.Context, p Plugin) (int, error) {
	return getAs[int](ctx, p, capability.AmbientSound)
}

// SetAmbientSound sets the ambient sound level.
func SetAmbientSound(ctx context.Context, p Plugin, level int) error {
	return p.Set(ctx, capability.AmbientSound, level)
}

// EqualizerPreset returns the equalizer preset.
func EqualizerPreset(ctx context.Context, p Plugin) (string, error) {
	return getAs[string](ctx, p, capability.EqualizerPreset)
}

// SetEqualizerPreset sets the equalizer preset.
func SetEqualizerPreset(ctx context.Context, p Plugin, preset string) error {
	return p.Set(ctx, capability.EqualizerPreset, preset)
}

func getAs[T any](ctx context.Context, p Plugin, id capability.ID) (T, error) {
	var zero T
	v, err := p.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fault.Newf(fault.KindInvalidResponse, "%s returned %T", id, v)
	}
	return t, nil
}
