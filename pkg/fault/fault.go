package fault

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies the class of a failure.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Connection failures.
	KindNotConnected
	KindConnectionFailed
	KindCommandTimeout
	KindChannelClosed
	KindUnsupportedChannel
	KindBluetoothDisabled
	KindBluetoothUnavailable

	// Response failures.
	KindInvalidResponse
	KindUnexpectedResponse
	KindChecksumMismatch

	// Command failures.
	KindUnsupportedCommand
	KindInvalidParameter
	KindCommandRejected

	// Plugin failures.
	KindValidationFailed
	KindPluginNotFound
	KindRegistrationFailed
	KindPluginCrashed
	KindUnrecoverable

	// Settings failures.
	KindSettingsCorrupted
	KindMigrationFailed
)

// Category groups kinds for reporting.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryConnection
	CategoryResponse
	CategoryCommand
	CategoryPlugin
	CategorySettings
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "connection"
	case CategoryResponse:
		return "response"
	case CategoryCommand:
		return "command"
	case CategoryPlugin:
		return "plugin"
	case CategorySettings:
		return "settings"
	default:
		return "unknown"
	}
}

// Severity orders failures by impact.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityFatal
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Strategy tells the caller how to recover.
type Strategy uint8

const (
	StrategyNone Strategy = iota
	StrategyRetry
	StrategyRetryWithBackoff
	StrategyFallback
	StrategyReconnect
	StrategyUseDefaults
	StrategyDegraded
	StrategyUserIntervention
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyRetry:
		return "retry"
	case StrategyRetryWithBackoff:
		return "retryWithBackoff"
	case StrategyFallback:
		return "fallback"
	case StrategyReconnect:
		return "reconnect"
	case StrategyUseDefaults:
		return "useDefaults"
	case StrategyDegraded:
		return "degraded"
	case StrategyUserIntervention:
		return "userIntervention"
	default:
		return "unknown"
	}
}

// Retryable reports whether the connection manager may attempt again.
func (s Strategy) Retryable() bool {
	return s == StrategyRetry || s == StrategyRetryWithBackoff || s == StrategyReconnect
}

type kindInfo struct {
	name     string
	category Category
	severity Severity
	strategy Strategy
	message  string
}

var kinds = map[Kind]kindInfo{
	KindUnknown:              {"UNKNOWN", CategoryUnknown, SeverityError, StrategyRetry, "An unexpected error occurred"},
	KindNotConnected:         {"NOT_CONNECTED", CategoryConnection, SeverityError, StrategyReconnect, "The device is not connected"},
	KindConnectionFailed:     {"CONNECTION_FAILED", CategoryConnection, SeverityError, StrategyRetryWithBackoff, "Could not connect to the device"},
	KindCommandTimeout:       {"COMMAND_TIMEOUT", CategoryConnection, SeverityWarning, StrategyRetry, "The device did not answer in time"},
	KindChannelClosed:        {"CHANNEL_CLOSED", CategoryConnection, SeverityWarning, StrategyReconnect, "The connection to the device was closed"},
	KindUnsupportedChannel:   {"UNSUPPORTED_CHANNEL", CategoryConnection, SeverityError, StrategyFallback, "No supported connection type is available"},
	KindBluetoothDisabled:    {"BLUETOOTH_DISABLED", CategoryConnection, SeverityCritical, StrategyUserIntervention, "Bluetooth is turned off"},
	KindBluetoothUnavailable: {"BLUETOOTH_UNAVAILABLE", CategoryConnection, SeverityCritical, StrategyUserIntervention, "Bluetooth is not available"},
	KindInvalidResponse:      {"INVALID_RESPONSE", CategoryResponse, SeverityWarning, StrategyRetry, "The device sent an invalid response"},
	KindUnexpectedResponse:   {"UNEXPECTED_RESPONSE", CategoryResponse, SeverityWarning, StrategyRetry, "The device sent an unexpected response"},
	KindChecksumMismatch:     {"CHECKSUM_MISMATCH", CategoryResponse, SeverityWarning, StrategyRetry, "A response failed its integrity check"},
	KindUnsupportedCommand:   {"UNSUPPORTED_COMMAND", CategoryCommand, SeverityInfo, StrategyNone, "This feature is not supported by the device"},
	KindInvalidParameter:     {"INVALID_PARAMETER", CategoryCommand, SeverityWarning, StrategyNone, "The value is not valid for this setting"},
	KindCommandRejected:      {"COMMAND_REJECTED", CategoryCommand, SeverityWarning, StrategyNone, "The device rejected the command"},
	KindValidationFailed:     {"VALIDATION_FAILED", CategoryPlugin, SeverityError, StrategyNone, "The plugin definition is invalid"},
	KindPluginNotFound:       {"PLUGIN_NOT_FOUND", CategoryPlugin, SeverityError, StrategyNone, "No plugin supports this device"},
	KindRegistrationFailed:   {"REGISTRATION_FAILED", CategoryPlugin, SeverityError, StrategyNone, "The plugin could not be registered"},
	KindPluginCrashed:        {"PLUGIN_CRASHED", CategoryPlugin, SeverityCritical, StrategyFallback, "The device plugin stopped working"},
	KindUnrecoverable:        {"UNRECOVERABLE", CategoryPlugin, SeverityFatal, StrategyNone, "The device plugin cannot recover"},
	KindSettingsCorrupted:    {"SETTINGS_CORRUPTED", CategorySettings, SeverityWarning, StrategyUseDefaults, "Saved settings were damaged"},
	KindMigrationFailed:      {"MIGRATION_FAILED", CategorySettings, SeverityWarning, StrategyUseDefaults, "Saved settings could not be upgraded"},
}

// String returns the kind name.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Category returns the category the kind belongs to.
func (k Kind) Category() Category {
	return kinds[k].category
}

// Error is a classified failure.
type Error struct {
	Kind     Kind
	Severity Severity
	Strategy Strategy
	Message  string

	// Err is the underlying cause, if any.
	Err error
}

// New creates an error of the given kind with the kind's default severity
// and strategy. An empty message falls back to the kind's default message.
func New(kind Kind, msg string) *Error {
	info, ok := kinds[kind]
	if !ok {
		info = kinds[KindUnknown]
		kind = KindUnknown
	}
	msg = sanitize(msg)
	if msg == "" {
		msg = info.message
	}
	return &Error{
		Kind:     kind,
		Severity: info.severity,
		Strategy: info.strategy,
		Message:  msg,
	}
}

// Newf is New with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap classifies err under kind. The cause stays reachable through Unwrap.
func Wrap(kind Kind, err error, msg string) *Error {
	e := New(kind, msg)
	e.Err = err
	return e
}

// WithStrategy returns a copy of e using strategy s.
func (e *Error) WithStrategy(s Strategy) *Error {
	c := *e
	c.Strategy = s
	return &c
}

// WithSeverity returns a copy of e using severity s.
func (e *Error) WithSeverity(s Severity) *Error {
	c := *e
	c.Severity = s
	return &c
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + sanitize(e.Err.Error())
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// UserVisible reports whether the failure should be surfaced to the user.
func (e *Error) UserVisible() bool {
	return e.Severity >= SeverityWarning
}

// Sentinels for errors.Is checks.
var (
	ErrNotConnected       = New(KindNotConnected, "")
	ErrConnectionFailed   = New(KindConnectionFailed, "")
	ErrTimeout            = New(KindCommandTimeout, "")
	ErrChannelClosed      = New(KindChannelClosed, "")
	ErrUnsupportedChannel = New(KindUnsupportedChannel, "")
	ErrInvalidResponse    = New(KindInvalidResponse, "")
	ErrChecksumMismatch   = New(KindChecksumMismatch, "")
	ErrUnsupported        = New(KindUnsupportedCommand, "")
	ErrInvalidParameter   = New(KindInvalidParameter, "")
	ErrCommandRejected    = New(KindCommandRejected, "")
	ErrValidation         = New(KindValidationFailed, "")
	ErrPluginNotFound     = New(KindPluginNotFound, "")
	ErrRegistration       = New(KindRegistrationFailed, "")
	ErrUnrecoverable      = New(KindUnrecoverable, "")
	ErrSettingsCorrupted  = New(KindSettingsCorrupted, "")
	ErrMigrationFailed    = New(KindMigrationFailed, "")
)

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindUnknown
}

// StrategyOf classifies err for the retry boundary. Cancellation never retries;
// deadline expiry is treated like a command timeout.
func StrategyOf(err error) Strategy {
	if err == nil {
		return StrategyNone
	}
	if e := As(err); e != nil {
		return e.Strategy
	}
	if errors.Is(err, context.Canceled) {
		return StrategyNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return kinds[KindCommandTimeout].strategy
	}
	return kinds[KindUnknown].strategy
}

// Classify converts any error into an *Error. Foreign errors become KindUnknown.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e := As(err); e != nil {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindCommandTimeout, err, "")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(KindUnknown, err, "The operation was cancelled").WithStrategy(StrategyNone)
	}
	return Wrap(KindUnknown, err, "")
}

var macPattern = regexp.MustCompile(`(?i)\b[0-9a-f]{2}([:-][0-9a-f]{2}){5}\b`)

// sanitize keeps the first line of msg and redacts hardware addresses.
func sanitize(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}
	msg = macPattern.ReplaceAllString(msg, "<device>")
	return strings.TrimSpace(msg)
}
