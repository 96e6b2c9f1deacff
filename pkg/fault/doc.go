// Package fault defines the error taxonomy shared by every earlink layer.
//
// Every failure that crosses a package boundary is an *Error carrying:
//   - a Kind (what went wrong, grouped into categories)
//   - a Severity (info, warning, error, critical, fatal)
//   - a recovery Strategy the connection manager uses at its retry boundary
//   - a human message that never contains raw device addresses or stack content
//
// # Categories
//
//	connection  not-connected, connection-failed, command-timeout, channel-closed,
//	            unsupported-channel, bluetooth-disabled, bluetooth-unavailable
//	response    invalid-response, unexpected-response, checksum-mismatch
//	command     unsupported-command, invalid-parameter, command-rejected
//	plugin      validation-failed, not-found, registration-failed, crashed, unrecoverable
//	settings    corrupted, migration-failed
//	unknown     fallback for foreign errors
//
// # Matching
//
// errors.Is compares kinds, so the package-level sentinels work with wrapped
// errors regardless of their message:
//
//	if errors.Is(err, fault.ErrUnsupported) {
//	    // skip capability
//	}
package fault
