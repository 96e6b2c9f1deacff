// Package notify publishes connection notifications to an MQTT broker.
//
// Topics, relative to a configurable prefix (default "earlink"):
//
//	<prefix>/status                  bridge process online/offline (retained, LWT)
//	<prefix>/state                   connection state (retained)
//	<prefix>/event/<type>            one message per notification
//	<prefix>/device/<address>/state  per-device connection state (retained)
//
// Payloads are JSON. Publishing never blocks the caller: delivery failures
// are logged.
package notify
