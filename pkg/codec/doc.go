// Package codec encodes capability commands into vendor frames and decodes
// device responses.
//
// Two protocol families are supported, each in two generations:
//
//	BMAP v1  [functionBlock, function, operator, length, payload...]
//	BMAP v2  [length, <v1 frame>..., checksum]
//	         checksum = (256 - sum(v1 frame) mod 256) mod 256
//	MDR v1   [0x3E, dataType, seq, length, category, subCommand, payload..., checksum, 0x3C]
//	MDR v2   [0x3E, dataType, seq, length, category, subCommand, flag, payload..., checksum, 0x3C]
//	         length   = bytes from category to the end of payload
//	         checksum = (dataType + seq + length + body) mod 256
//
// BMAP is spoken by the Bose headset family, MDR by the Sony family.
//
// # Degraded decoding
//
// Decode never fails. A response that is too short, fails its checksum, or
// answers a different command decodes to the capability's safe default
// (noise cancellation "off", battery 0, language "en", ...) and a non-nil
// *Diagnostic explaining why. Callers log the diagnostic; the value is still
// usable.
//
// # Enumeration tables
//
// The byte values in tables.go are the devices' own encodings. They are not
// ordered by intensity (BMAP noise cancellation high is 0x01, low is 0x03) and
// must not be "tidied".
package codec
