// Package connection manages the lifecycle of the single headset
// connection.
//
// A Manager resolves a plugin through the registry, builds and opens a
// channel, binds the plugin, activates it and restores saved settings.
// Disconnect reverses the sequence and persists settings first.
//
// # Retry
//
// Failed attempts are retried according to the error's recovery strategy.
// Delays grow exponentially:
//
//	delay(n) = min(1s * 2^(n-1), 8s)
//
// and at most three attempts are made. Errors whose strategy is not
// retryable (no plugin, invalid input, unrecoverable plugin) fail at once.
//
// # Supersession
//
// Connect and Disconnect never overlap. A new call cancels the one in
// progress and waits for it to unwind before starting. The cancelled
// Connect returns ErrSuperseded.
//
// # Link loss
//
// When a channel closes unexpectedly the plugin is deactivated and the
// observer is told through Disconnected with the transport's error. The
// manager does not reconnect on its own.
//
// Backoff provides the same delay curve with jitter for open-ended polling
// loops such as bridge rediscovery.
package connection
