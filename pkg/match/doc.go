// Package match scores observed Bluetooth devices against plugin identification
// criteria.
//
// # Scoring
//
// Each criterion that matches adds a fixed weight:
//
//	vendor + product id   +80  (both present on both sides, case-insensitive)
//	service UUID overlap  +15  (flat, not per shared UUID)
//	MAC address prefix    +10  (case-insensitive)
//	manufacturer data     +5   (any named signature is a byte substring)
//	name pattern          +3   (regular expression fallback)
//
// The sum is capped at the identifier's ConfidenceScore. A capped sum below the
// threshold (DefaultThreshold, 51) is no match. A name match alone therefore
// never identifies a device.
package match
