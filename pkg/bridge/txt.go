package bridge

import (
	"strings"

	"github.com/earlink/earlink-go/pkg/channel"
)

// TXT record keys.
const (
	TXTKeyChannels = "ch"
	TXTKeyDevices  = "dev"
)

// maxTXTString is the DNS limit for one TXT string.
const maxTXTString = 255

// TXTInfo is what a bridge advertises.
type TXTInfo struct {
	// Channels lists the transport kinds the bridge can open.
	Channels []channel.Type

	// Devices lists the headset addresses the bridge reaches. Empty means
	// any address.
	Devices []string
}

// EncodeTXT builds the TXT strings for info. A device list too long for a
// single TXT string is left out, so the bridge advertises as serving any
// address.
func EncodeTXT(info TXTInfo) []string {
	names := make([]string, 0, len(info.Channels))
	for _, t := range info.Channels {
		names = append(names, t.String())
	}
	txt := []string{TXTKeyChannels + "=" + strings.Join(names, ",")}
	if len(info.Devices) > 0 {
		dev := TXTKeyDevices + "=" + strings.ToUpper(strings.Join(info.Devices, ","))
		if len(dev) <= maxTXTString {
			txt = append(txt, dev)
		}
	}
	return txt
}

// DecodeTXT parses TXT strings. Unknown keys and channel names are
// ignored. A missing channel list means stream only.
func DecodeTXT(txt []string) TXTInfo {
	var info TXTInfo
	for _, s := range txt {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case TXTKeyChannels:
			for _, name := range strings.Split(value, ",") {
				if t, err := channel.ParseType(strings.TrimSpace(name)); err == nil {
					info.Channels = append(info.Channels, t)
				}
			}
		case TXTKeyDevices:
			for _, addr := range strings.Split(value, ",") {
				if addr = strings.TrimSpace(addr); addr != "" {
					info.Devices = append(info.Devices, strings.ToUpper(addr))
				}
			}
		}
	}
	if len(info.Channels) == 0 {
		info.Channels = []channel.Type{channel.TypeStream}
	}
	return info
}
