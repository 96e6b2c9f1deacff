// Package settings persists per-device headset configuration.
//
// A Store keeps one versioned JSON record per device id on a Medium. Keys
// are sanitized device ids. Damaged records are salvaged field by field
// rather than discarded. Capture and Restore move values between a record
// and a connected plugin, skipping capabilities the plugin does not
// support.
package settings
