package plugin

import (
	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/channel"
	"github.com/earlink/earlink-go/pkg/codec"
	"github.com/earlink/earlink-go/pkg/match"
)

// Bluetooth SIG company identifiers.
const (
	BoseCompanyID = "0x009E"
	SonyCompanyID = "0x012D"
)

// Advertised service UUIDs.
const (
	BoseServiceUUID = "FEBE"
	SonyServiceUUID = "96CC203E-5068-46AD-B32D-E316F5E069BA"
)

var (
	bmapLanguages = capability.Discrete("en", "fr", "it", "de", "es", "pt", "zh", "ko", "ru", "pl", "nl", "ja", "sv")
	bmapAutoOff   = capability.Discrete("never", "5", "20", "40", "60", "180")
	bmapSelfVoice = capability.Discrete("off", "low", "medium", "high")

	mdrEqualizer = capability.Discrete("off", "bright", "excited", "mellow", "relaxed", "vocal",
		"trebleBoost", "bassBoost", "speech", "manual", "custom1", "custom2")
	mdrAmbient = capability.Continuous(0, 20, 1)
	mdrAutoOff = capability.Discrete("5", "30", "60", "180", "never")

	batteryLevel = capability.Continuous(0, 100, 1)
)

func boseModel(tag, name, product string, v codec.Version, caps map[capability.ID]capability.ValueType, namePattern string) Model {
	return Model{
		Tag:          tag,
		DisplayName:  name,
		Codec:        v,
		Capabilities: caps,
		Identifiers: []match.Identifier{
			{
				VendorID:        BoseCompanyID,
				ProductID:       product,
				ServiceUUIDs:    []string{BoseServiceUUID},
				MACPrefix:       "04:52:C7",
				ConfidenceScore: 95,
			},
			{
				ServiceUUIDs:    []string{BoseServiceUUID},
				NamePattern:     namePattern,
				ConfidenceScore: 70,
			},
		},
	}
}

// Bose returns the Bose BMAP vendor description.
func Bose() *Vendor {
	return &Vendor{
		ID:          "bose",
		DisplayName: "Bose",
		Threshold:   match.DefaultThreshold,
		Channels:    []channel.Type{channel.TypeStream, channel.TypeCharacteristic},
		Models: []Model{
			boseModel("qc35ii", "QuietComfort 35 II", "0x4020", codec.BMAPv1, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "low", "high"),
				capability.SelfVoice:         bmapSelfVoice,
				capability.AutoOff:           bmapAutoOff,
				capability.Language:          bmapLanguages,
				capability.VoicePrompts:      capability.Boolean(),
				capability.PairedDevices:     capability.Text(),
				capability.ButtonAction:      capability.Discrete("alexa", "noiseCancellation"),
			}, `(?i)^bose qc ?35 ii`),
			boseModel("qc35", "QuietComfort 35", "0x400C", codec.BMAPv1, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "high"),
				capability.SelfVoice:         bmapSelfVoice,
				capability.AutoOff:           bmapAutoOff,
				capability.Language:          bmapLanguages,
				capability.VoicePrompts:      capability.Boolean(),
				capability.PairedDevices:     capability.Text(),
			}, `(?i)^bose qc ?35$`),
			boseModel("nc700", "Noise Cancelling Headphones 700", "0x4024", codec.BMAPv2, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "low", "high"),
				capability.SelfVoice:         bmapSelfVoice,
				capability.AutoOff:           bmapAutoOff,
				capability.Language:          bmapLanguages,
				capability.VoicePrompts:      capability.Boolean(),
				capability.PairedDevices:     capability.Text(),
			}, `(?i)^bose nc ?700`),
			boseModel("qcearbuds", "QuietComfort Earbuds", "0x4060", codec.BMAPv2, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "low", "high"),
				capability.Language:          bmapLanguages,
				capability.VoicePrompts:      capability.Boolean(),
				capability.PairedDevices:     capability.Text(),
			}, `(?i)^bose qc earbuds`),
		},
	}
}

func sonyModel(tag, name, product string, v codec.Version, caps map[capability.ID]capability.ValueType) Model {
	return Model{
		Tag:          tag,
		DisplayName:  name,
		Codec:        v,
		Capabilities: caps,
		Identifiers: []match.Identifier{
			{
				VendorID:        SonyCompanyID,
				ProductID:       product,
				ServiceUUIDs:    []string{SonyServiceUUID},
				ConfidenceScore: 95,
			},
			{
				ServiceUUIDs:    []string{SonyServiceUUID},
				NamePattern:     "^" + name + "$",
				MACPrefix:       "38:18:4C",
				ConfidenceScore: 80,
			},
		},
	}
}

// Sony returns the Sony MDR vendor description. Sony requires the stricter
// match threshold because its service UUID is shared across product lines.
func Sony() *Vendor {
	return &Vendor{
		ID:          "sony",
		DisplayName: "Sony",
		Threshold:   match.StrictThreshold,
		Channels:    []channel.Type{channel.TypeStream},
		Models: []Model{
			sonyModel("wh1000xm4", "WH-1000XM4", "0x0D58", codec.MDRv2, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "on"),
				capability.AmbientSound:      mdrAmbient,
				capability.EqualizerPreset:   mdrEqualizer,
				capability.AutoOff:           mdrAutoOff,
				capability.VoicePrompts:      capability.Boolean(),
				capability.ButtonAction:      capability.Discrete("noiseCancellation", "googleAssistant", "alexa"),
			}),
			sonyModel("wh1000xm3", "WH-1000XM3", "0x0CD3", codec.MDRv1, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "on", "wind"),
				capability.AmbientSound:      mdrAmbient,
				capability.EqualizerPreset:   mdrEqualizer,
				capability.AutoOff:           mdrAutoOff,
				capability.VoicePrompts:      capability.Boolean(),
				capability.ButtonAction:      capability.Discrete("noiseCancellation", "googleAssistant", "alexa"),
			}),
			sonyModel("wf1000xm4", "WF-1000XM4", "0x0DE1", codec.MDRv2, map[capability.ID]capability.ValueType{
				capability.Battery:           batteryLevel,
				capability.NoiseCancellation: capability.Discrete("off", "on"),
				capability.AmbientSound:      mdrAmbient,
				capability.EqualizerPreset:   mdrEqualizer,
				capability.VoicePrompts:      capability.Boolean(),
			}),
		},
	}
}

// Builtin returns the built-in vendor plugins.
func Builtin(cfg Config) []Plugin {
	return []Plugin{
		New(Bose(), cfg),
		New(Sony(), cfg),
	}
}
