package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boseIdentifier() Identifier {
	return Identifier{
		VendorID:        "0x009E",
		ProductID:       "0x4002",
		ConfidenceScore: 95,
	}
}

func TestScoreLiterals(t *testing.T) {
	t.Run("VendorProduct", func(t *testing.T) {
		dev := &ObservedDevice{VendorID: "0x009e", ProductID: "4002"}
		score, ok := Score(dev, boseIdentifier())
		require.True(t, ok)
		assert.Equal(t, 80, score)
	})

	t.Run("VendorProductAndServiceUUID", func(t *testing.T) {
		id := boseIdentifier()
		id.ServiceUUIDs = []string{"febe"}
		dev := &ObservedDevice{
			VendorID:     "0x009E",
			ProductID:    "0x4002",
			ServiceUUIDs: []string{"0000FEBE-0000-1000-8000-00805F9B34FB"},
		}
		score, ok := Score(dev, id)
		require.True(t, ok)
		assert.Equal(t, 95, score)
	})

	t.Run("VendorProductAndMACPrefix", func(t *testing.T) {
		id := boseIdentifier()
		id.MACPrefix = "4C:87:5D"
		dev := &ObservedDevice{Address: "4c:87:5d:01:02:03", VendorID: "0x009E", ProductID: "0x4002"}
		score, ok := Score(dev, id)
		require.True(t, ok)
		assert.Equal(t, 90, score)
	})

	t.Run("NameOnlyIsNoMatch", func(t *testing.T) {
		id := Identifier{NamePattern: "(?i)bose", ConfidenceScore: 95}
		dev := &ObservedDevice{Name: "Bose QC35 II"}
		score, ok := Score(dev, id)
		assert.False(t, ok)
		assert.Zero(t, score)
		assert.Equal(t, 3, RawScore(dev, id))
	})
}

func TestScoreCappedByConfidence(t *testing.T) {
	id := Identifier{
		VendorID:        "0x054C",
		ProductID:       "0x0CD3",
		ServiceUUIDs:    []string{"96cc203e-5068-46ad-b32d-e316f5e069ba"},
		MACPrefix:       "AC:80:0A",
		ConfidenceScore: 85,
	}
	dev := &ObservedDevice{
		Address:      "AC:80:0A:00:00:01",
		VendorID:     "0x054c",
		ProductID:    "0x0cd3",
		ServiceUUIDs: []string{"96CC203E-5068-46AD-B32D-E316F5E069BA"},
	}
	score, ok := Score(dev, id)
	require.True(t, ok)
	assert.Equal(t, 85, score)
}

func TestScoreMonotonicAsCriteriaAdded(t *testing.T) {
	dev := &ObservedDevice{
		Address:          "4C:87:5D:AA:BB:CC",
		Name:             "Bose NC 700",
		VendorID:         "0x009E",
		ProductID:        "0x4024",
		ServiceUUIDs:     []string{"febe"},
		ManufacturerData: []byte{0x9e, 0x00, 0x40, 0x24, 0x01},
	}
	steps := []Identifier{
		{NamePattern: "NC 700", ConfidenceScore: 100},
		{NamePattern: "NC 700", MACPrefix: "4c:87:5d", ConfidenceScore: 100},
		{NamePattern: "NC 700", MACPrefix: "4c:87:5d", ServiceUUIDs: []string{"FEBE"}, ConfidenceScore: 100},
		{NamePattern: "NC 700", MACPrefix: "4c:87:5d", ServiceUUIDs: []string{"FEBE"},
			Signatures: map[string][]byte{"pid": {0x40, 0x24}}, ConfidenceScore: 100},
		{NamePattern: "NC 700", MACPrefix: "4c:87:5d", ServiceUUIDs: []string{"FEBE"},
			Signatures: map[string][]byte{"pid": {0x40, 0x24}}, VendorID: "9e", ProductID: "4024", ConfidenceScore: 100},
	}

	prev := -1
	for i, id := range steps {
		raw := RawScore(dev, id)
		assert.GreaterOrEqual(t, raw, prev, "step %d", i)
		prev = raw

		if score, ok := Score(dev, id); ok {
			assert.GreaterOrEqual(t, score, DefaultThreshold)
			assert.LessOrEqual(t, score, id.ConfidenceScore)
		}
	}
	assert.Equal(t, 100, prev)
}

func TestServiceUUIDIsFlat(t *testing.T) {
	id := Identifier{
		VendorID: "1", ProductID: "2",
		ServiceUUIDs:    []string{"febe", "fe2c", "180f"},
		ConfidenceScore: 100,
	}
	dev := &ObservedDevice{VendorID: "1", ProductID: "2", ServiceUUIDs: []string{"febe", "fe2c", "180f"}}
	score, ok := Score(dev, id)
	require.True(t, ok)
	assert.Equal(t, 95, score)
}

func TestVendorProductRequiresBothSides(t *testing.T) {
	id := Identifier{VendorID: "0x009E", ProductID: "0x4002", ConfidenceScore: 95}
	dev := &ObservedDevice{VendorID: "0x009E"}
	assert.Zero(t, RawScore(dev, id))
}

func TestBestAndAllMatches(t *testing.T) {
	dev := &ObservedDevice{
		Address:   "4C:87:5D:00:00:01",
		VendorID:  "0x009E",
		ProductID: "0x4020",
	}
	ids := []Identifier{
		{VendorID: "0x009E", ProductID: "0x4020", ConfidenceScore: 85, Model: "first"},
		{VendorID: "0x009E", ProductID: "0x4020", MACPrefix: "4C:87:5D", ConfidenceScore: 95, Model: "best"},
		{VendorID: "0x009E", ProductID: "0x4020", ConfidenceScore: 85, Model: "tie"},
		{NamePattern: ".*", ConfidenceScore: 100, Model: "never"},
	}

	best, ok := BestMatch(dev, ids)
	require.True(t, ok)
	assert.Equal(t, "best", best.Identifier.Model)
	assert.Equal(t, 90, best.Score)

	all := AllMatches(dev, ids)
	require.Len(t, all, 3)
	assert.Equal(t, "best", all[0].Identifier.Model)
	assert.Equal(t, "first", all[1].Identifier.Model)
	assert.Equal(t, "tie", all[2].Identifier.Model)

	_, ok = BestMatchWithThreshold(dev, ids[:1], 81)
	assert.False(t, ok)
}

func TestIdentifierValidate(t *testing.T) {
	assert.Error(t, Identifier{ConfidenceScore: 50}.Validate())
	assert.Error(t, Identifier{MACPrefix: "00:11", ConfidenceScore: 101}.Validate())
	assert.Error(t, Identifier{NamePattern: "([", ConfidenceScore: 50}.Validate())
	assert.NoError(t, Identifier{MACPrefix: "00:11", ConfidenceScore: 50}.Validate())
	assert.False(t, Identifier{VendorID: "0x009E"}.HasCriteria())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "9e", NormalizeHexID("0x009E"))
	assert.Equal(t, "0", NormalizeHexID("0x0000"))
	assert.Equal(t, "0000febe-0000-1000-8000-00805f9b34fb", NormalizeUUID("0xFEBE"))
}
