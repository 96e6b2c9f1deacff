package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueTypeValidate(t *testing.T) {
	tests := []struct {
		name    string
		vt      ValueType
		in      any
		want    any
		wantErr bool
	}{
		{"discrete case-insensitive", Discrete("off", "low", "high"), "HIGH", "high", false},
		{"discrete unknown", Discrete("off", "low", "high"), "medium", nil, true},
		{"discrete wrong type", Discrete("off"), 3, nil, true},
		{"continuous in range", Continuous(0, 20, 1), 20, 20, false},
		{"continuous float", Continuous(0, 20, 1), float64(7), 7, false},
		{"continuous out of range", Continuous(0, 20, 1), 21, nil, true},
		{"continuous off step", Continuous(0, 100, 10), 15, nil, true},
		{"boolean", Boolean(), true, true, false},
		{"boolean wrong type", Boolean(), "yes", nil, true},
		{"text list", Text(), []string{"a"}, []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.vt.Validate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValue(t *testing.T) {
	v, err := Boolean().ParseValue("on")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Continuous(0, 20, 1).ParseValue(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	_, err = Continuous(0, 20, 1).ParseValue("loud")
	assert.Error(t, err)

	v, err = Discrete("alexa", "noiseCancellation").ParseValue("NoiseCancellation")
	require.NoError(t, err)
	assert.Equal(t, "noiseCancellation", v)
}

func TestParseID(t *testing.T) {
	id, ok := Parse("NOISECANCELLATION")
	assert.True(t, ok)
	assert.Equal(t, NoiseCancellation, id)

	_, ok = Parse("volume")
	assert.False(t, ok)

	assert.True(t, Battery.ReadOnly())
	assert.False(t, Language.ReadOnly())
}
