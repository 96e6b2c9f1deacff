package codec

import "github.com/earlink/earlink-go/pkg/capability"

// codeTable maps canonical values to device byte codes in declaration order.
type codeTable[T comparable] []tableEntry[T]

type tableEntry[T comparable] struct {
	value T
	code  byte
}

func (t codeTable[T]) encode(v T) (byte, bool) {
	for _, e := range t {
		if e.value == v {
			return e.code, true
		}
	}
	return 0, false
}

func (t codeTable[T]) decode(code byte) (T, bool) {
	for _, e := range t {
		if e.code == code {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

func (t codeTable[T]) values() []T {
	out := make([]T, len(t))
	for i, e := range t {
		out[i] = e.value
	}
	return out
}

// BMAP enumerations.
var (
	bmapNoiseCancellation = codeTable[string]{
		{"off", 0x00},
		{"high", 0x01},
		{"low", 0x03},
	}

	bmapSelfVoice = codeTable[string]{
		{"off", 0x00},
		{"high", 0x01},
		{"medium", 0x02},
		{"low", 0x03},
	}

	// Minutes.
	bmapAutoOff = codeTable[string]{
		{"never", 0x00},
		{"5", 0x05},
		{"20", 0x14},
		{"40", 0x28},
		{"60", 0x3C},
		{"180", 0xB4},
	}

	bmapLanguage = codeTable[string]{
		{"en", 0x21},
		{"fr", 0x22},
		{"it", 0x23},
		{"de", 0x24},
		{"es", 0x26},
		{"pt", 0x27},
		{"zh", 0x28},
		{"ko", 0x29},
		{"ru", 0x2A},
		{"pl", 0x2B},
		{"nl", 0x2E},
		{"ja", 0x2F},
		{"sv", 0x32},
	}

	bmapButtonAction = codeTable[string]{
		{"alexa", 0x01},
		{"noiseCancellation", 0x02},
	}
)

// bmapPromptsOn is OR-ed into the language byte when voice prompts are enabled.
const bmapPromptsOn = 0x80

// MDR enumerations.
var (
	mdrNoiseCancellation = codeTable[string]{
		{"off", 0x00},
		{"on", 0x01},
		{"wind", 0x02},
	}

	// Minutes.
	mdrAutoOff = codeTable[string]{
		{"5", 0x00},
		{"30", 0x01},
		{"60", 0x02},
		{"180", 0x03},
		{"never", 0x11},
	}

	mdrEqualizer = codeTable[string]{
		{"off", 0x00},
		{"bright", 0x10},
		{"excited", 0x11},
		{"mellow", 0x12},
		{"relaxed", 0x13},
		{"vocal", 0x14},
		{"trebleBoost", 0x15},
		{"bassBoost", 0x16},
		{"speech", 0x17},
		{"manual", 0xA0},
		{"custom1", 0xA1},
		{"custom2", 0xA2},
	}

	mdrButtonAction = codeTable[string]{
		{"noiseCancellation", 0x00},
		{"googleAssistant", 0x30},
		{"alexa", 0x35},
	}
)

// Options returns the values a protocol generation can encode for a discrete
// capability, in table order. It is used to validate declarative models.
func Options(v Version, id capability.ID) []string {
	switch v {
	case BMAPv1, BMAPv2:
		switch id {
		case capability.NoiseCancellation:
			return bmapNoiseCancellation.values()
		case capability.SelfVoice:
			return bmapSelfVoice.values()
		case capability.AutoOff:
			return bmapAutoOff.values()
		case capability.Language:
			return bmapLanguage.values()
		case capability.ButtonAction:
			return bmapButtonAction.values()
		}
	case MDRv1, MDRv2:
		switch id {
		case capability.NoiseCancellation:
			return mdrNoiseCancellation.values()
		case capability.AutoOff:
			return mdrAutoOff.values()
		case capability.EqualizerPreset:
			return mdrEqualizer.values()
		case capability.ButtonAction:
			return mdrButtonAction.values()
		}
	}
	return nil
}
