// Package channel carries command frames between a plugin and a headset.
//
// A Channel wraps a Transport (the raw byte link a Provider hands out) and
// turns it into a request/response primitive: SendCommand writes a frame and
// waits for the matching reply. A channel has exactly one request slot.
// Replies are either the first non-empty receipt, or - when a response
// prefix is given - the bytes starting at the first occurrence of that
// prefix. Bytes that arrive while no request is waiting, or after a request
// timed out, are dropped.
//
// Two transport kinds exist: stream-oriented links (RFCOMM-like serial
// ports) and characteristic-oriented links (GATT write plus notify). The
// Factory picks one from a plugin's preference list.
package channel
