package match

import (
	"fmt"
	"regexp"
	"strings"
)

// Criterion weights.
const (
	WeightVendorProduct = 80
	WeightServiceUUID   = 15
	WeightMACPrefix     = 10
	WeightManufacturer  = 5
	WeightName          = 3
)

// Thresholds.
const (
	// DefaultThreshold is the minimum score for a match.
	DefaultThreshold = 51

	// StrictThreshold is used by vendor plugins that require stronger evidence.
	StrictThreshold = 60

	// MaxConfidence is the upper bound of any score.
	MaxConfidence = 100
)

// Identifier describes how to recognise one device family or model.
// Identifiers are values; they are built once when a plugin is constructed.
type Identifier struct {
	// VendorID and ProductID are compared as hex ids ("0x009E" == "009e").
	VendorID  string
	ProductID string

	// ServiceUUIDs advertised by the device.
	ServiceUUIDs []string

	// NamePattern is a regular expression matched against the device name.
	NamePattern string

	// MACPrefix is matched against the start of the device address.
	MACPrefix string

	// ConfidenceScore caps the score this identifier can produce (0-100).
	ConfidenceScore int

	// Signatures maps a signature name to a byte sequence searched for in
	// manufacturer data.
	Signatures map[string][]byte

	// Model tags the model this identifier recognises. Empty for vendor-wide
	// identifiers.
	Model string

	namePattern *regexp.Regexp
}

// HasCriteria reports whether at least one identification criterion is set.
func (id Identifier) HasCriteria() bool {
	return (id.VendorID != "" && id.ProductID != "") ||
		len(id.ServiceUUIDs) > 0 ||
		id.NamePattern != "" ||
		id.MACPrefix != "" ||
		len(id.Signatures) > 0
}

// Validate checks the identifier's structural invariants.
func (id Identifier) Validate() error {
	if !id.HasCriteria() {
		return fmt.Errorf("identifier has no identification criteria")
	}
	if id.ConfidenceScore < 0 || id.ConfidenceScore > MaxConfidence {
		return fmt.Errorf("confidence score %d out of range [0,%d]", id.ConfidenceScore, MaxConfidence)
	}
	if id.NamePattern != "" {
		if _, err := regexp.Compile(id.NamePattern); err != nil {
			return fmt.Errorf("invalid name pattern: %w", err)
		}
	}
	return nil
}

// Compile returns a copy with the name pattern precompiled. Invalid patterns
// leave the name criterion inert.
func (id Identifier) Compile() Identifier {
	if id.NamePattern != "" && id.namePattern == nil {
		if re, err := regexp.Compile(id.NamePattern); err == nil {
			id.namePattern = re
		}
	}
	return id
}

func (id Identifier) nameRegexp() *regexp.Regexp {
	if id.namePattern != nil {
		return id.namePattern
	}
	if id.NamePattern == "" {
		return nil
	}
	re, err := regexp.Compile(id.NamePattern)
	if err != nil {
		return nil
	}
	return re
}

// ObservedDevice is one observation of a nearby or connected device as reported
// by the host Bluetooth stack.
type ObservedDevice struct {
	Address   string
	Name      string
	VendorID  string
	ProductID string

	ServiceUUIDs []string
	Connected    bool
	RSSI         int

	ManufacturerData []byte
	Advertisement    map[string]any
}

// String returns a log-safe description that omits the address.
func (d *ObservedDevice) String() string {
	if d.Name != "" {
		return d.Name
	}
	return "unnamed device"
}

// NormalizeHexID canonicalises a hex id: lower case, no 0x prefix, no leading zeros.
func NormalizeHexID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

// NormalizeUUID canonicalises a UUID string for comparison. 16-bit and 32-bit
// short forms expand to the Bluetooth base UUID.
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	switch len(s) {
	case 4:
		return "0000" + s + "-0000-1000-8000-00805f9b34fb"
	case 8:
		return s + "-0000-1000-8000-00805f9b34fb"
	}
	return s
}
