// Package bridge reaches headsets through a network Bluetooth bridge.
//
// A bridge is a small host near the headsets (a Raspberry Pi, a phone)
// that owns the Bluetooth radio and relays raw protocol bytes over TCP.
// Bridges advertise themselves over mDNS as _hsbridge._tcp.
//
// # Wire format
//
// Every frame is a 4-byte big-endian length followed by a 1-byte frame
// type and the payload:
//
//	+--------+------+---------+
//	| length | type | payload |
//	+--------+------+---------+
//
// A session starts with an OPEN frame carrying a CBOR-encoded OpenRequest.
// The bridge answers with OPEN_RESULT. DATA frames then carry protocol
// bytes in both directions until either side sends CLOSE.
//
// Provider implements channel.Provider over the known bridges, Browser
// keeps that set current from mDNS, and Server exposes any
// channel.Provider (typically the simulator) as a bridge.
package bridge
