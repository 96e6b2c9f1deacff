// Package log provides protocol capture for headset connections.
//
// This package defines the Logger interface and Event types for recording
// what happened on a connection: raw frames on the channel, decoded
// capability commands, connection state changes and errors. It is separate
// from operational logging (slog) - a capture is a machine-readable trace
// used to reverse-engineer and debug vendor protocols.
//
// # Basic Usage
//
//	// Connection manager config. For development: log to console via slog
//	cfg.Capture = log.NewSlogAdapter(slog.Default())
//
//	// For captures: write to binary file
//	cfg.Capture, _ = log.NewFileLogger("/var/log/earlink/qc35.elog")
//
//	// Both: use MultiLogger
//	cfg.Capture = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with the .elog
// extension. The earlink-log tool views, filters and summarizes them.
package log
