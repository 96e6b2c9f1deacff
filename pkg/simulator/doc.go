// Package simulator provides simulated headsets that speak the BMAP and MDR
// wire protocols.
//
// A Headset implements channel.Transport, so it can stand in for a real
// Bluetooth link anywhere a transport is expected: in tests, in the
// earlinkctl shell (-simulate), and behind the TCP bridge. The simulation
// works at byte level: each command register holds the payload bytes last
// written, and queries echo them back in a correctly framed status reply.
//
// Faults can be injected to exercise recovery paths:
//   - FailOpens makes the next n Open calls fail
//   - SetMute swallows commands so requests time out
//   - SetCorrupt breaks reply checksums
//   - Drop simulates link loss
package simulator
