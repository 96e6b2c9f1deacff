// Package plugin implements device handlers for headset families.
//
// A plugin identifies the devices it supports (CanHandle), binds to an open
// channel (Connect) and exposes capability reads and writes (Get, Set).
// Vendor differences are data, not code: a Vendor lists Models, and each
// Model declares its codec version, its capability set with value domains,
// and the identifiers that recognise it. One Headset type serves every
// vendor; Specialize narrows a vendor-wide plugin to the model a device
// matched.
//
// Operations on capabilities a model does not declare fail with
// fault.KindUnsupportedCommand. Operations before Connect fail with
// fault.KindNotConnected.
package plugin
