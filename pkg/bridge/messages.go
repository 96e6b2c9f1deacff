package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/earlink/earlink-go/pkg/channel"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: cbor dec mode: %v", err))
	}
}

// OpenRequest asks the bridge for a link to one headset.
type OpenRequest struct {
	Address string `cbor:"1,keyasint"`
	Channel string `cbor:"2,keyasint"`

	// Characteristic addressing, set for characteristic channels only.
	Service string `cbor:"3,keyasint,omitempty"`
	Write   string `cbor:"4,keyasint,omitempty"`
	Notify  string `cbor:"5,keyasint,omitempty"`
}

// Type parses the requested channel type.
func (r *OpenRequest) Type() (channel.Type, error) {
	return channel.ParseType(r.Channel)
}

// Characteristic returns the characteristic addressing, or nil.
func (r *OpenRequest) Characteristic() *channel.CharacteristicConfig {
	if r.Service == "" && r.Write == "" && r.Notify == "" {
		return nil
	}
	return &channel.CharacteristicConfig{Service: r.Service, Write: r.Write, Notify: r.Notify}
}

// OpenResult is the bridge's answer to an OpenRequest.
type OpenResult struct {
	OK    bool   `cbor:"1,keyasint"`
	Error string `cbor:"2,keyasint,omitempty"`
}

func encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func decode(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
