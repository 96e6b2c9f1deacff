package fault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	tests := []struct {
		kind     Kind
		severity Severity
		strategy Strategy
		visible  bool
	}{
		{KindNotConnected, SeverityError, StrategyReconnect, true},
		{KindConnectionFailed, SeverityError, StrategyRetryWithBackoff, true},
		{KindCommandTimeout, SeverityWarning, StrategyRetry, true},
		{KindUnsupportedCommand, SeverityInfo, StrategyNone, false},
		{KindBluetoothDisabled, SeverityCritical, StrategyUserIntervention, true},
		{KindUnrecoverable, SeverityFatal, StrategyNone, true},
		{KindSettingsCorrupted, SeverityWarning, StrategyUseDefaults, true},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			e := New(tt.kind, "")
			assert.Equal(t, tt.severity, e.Severity)
			assert.Equal(t, tt.strategy, e.Strategy)
			assert.Equal(t, tt.visible, e.UserVisible())
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("reading battery: %w", New(KindUnsupportedCommand, "battery is not available"))

	assert.True(t, errors.Is(err, ErrUnsupported))
	assert.False(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, KindUnsupportedCommand, KindOf(err))
}

func TestMessageRedactsAddresses(t *testing.T) {
	e := New(KindConnectionFailed, "cannot reach 4C:87:5D:12:34:56\ngoroutine 1 [running]")

	assert.Equal(t, "cannot reach <device>", e.Message)
	assert.NotContains(t, e.Error(), "goroutine")

	wrapped := Wrap(KindChannelClosed, errors.New("rfcomm 4c-87-5d-12-34-56 reset"), "link lost")
	assert.Equal(t, "link lost: rfcomm <device> reset", wrapped.Error())
}

func TestStrategyOf(t *testing.T) {
	assert.Equal(t, StrategyNone, StrategyOf(nil))
	assert.Equal(t, StrategyNone, StrategyOf(context.Canceled))
	assert.Equal(t, StrategyRetry, StrategyOf(context.DeadlineExceeded))
	assert.Equal(t, StrategyRetry, StrategyOf(errors.New("boom")))
	assert.Equal(t, StrategyReconnect, StrategyOf(fmt.Errorf("x: %w", ErrChannelClosed)))

	assert.True(t, StrategyRetry.Retryable())
	assert.True(t, StrategyRetryWithBackoff.Retryable())
	assert.True(t, StrategyReconnect.Retryable())
	assert.False(t, StrategyFallback.Retryable())
	assert.False(t, StrategyUserIntervention.Retryable())
}

func TestWithStrategyCopies(t *testing.T) {
	e := New(KindPluginCrashed, "")
	c := e.WithStrategy(StrategyNone)

	assert.Equal(t, StrategyFallback, e.Strategy)
	assert.Equal(t, StrategyNone, c.Strategy)
}

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(slog.New(slog.NewTextHandler(&buf, nil)))

	got := r.Report(New(KindCommandTimeout, "battery query"), "device", "headset")
	require.NotNil(t, got)
	r.Report(errors.New("plain"))

	assert.Equal(t, 1, r.Count(KindCommandTimeout))
	assert.Equal(t, 1, r.Count(KindUnknown))
	assert.Equal(t, KindUnknown, r.Last().Kind)
	assert.True(t, strings.Contains(buf.String(), "COMMAND_TIMEOUT"))

	r.Reset()
	assert.Zero(t, r.Count(KindCommandTimeout))
	assert.Nil(t, r.Last())
	assert.Nil(t, r.Report(nil))
}
