package match

import (
	"bytes"
	"sort"
	"strings"
)

// Result is a scored identifier.
type Result struct {
	Identifier Identifier
	Score      int
}

// Score evaluates dev against id using DefaultThreshold.
// It returns the score and true, or 0 and false when there is no match.
func Score(dev *ObservedDevice, id Identifier) (int, bool) {
	return ScoreWithThreshold(dev, id, DefaultThreshold)
}

// ScoreWithThreshold evaluates dev against id with a custom acceptance threshold.
func ScoreWithThreshold(dev *ObservedDevice, id Identifier, threshold int) (int, bool) {
	if dev == nil {
		return 0, false
	}
	score := RawScore(dev, id)
	if score < threshold {
		return 0, false
	}
	return score, true
}

// RawScore returns the capped score without applying any threshold.
func RawScore(dev *ObservedDevice, id Identifier) int {
	score := 0

	if id.VendorID != "" && id.ProductID != "" && dev.VendorID != "" && dev.ProductID != "" &&
		NormalizeHexID(id.VendorID) == NormalizeHexID(dev.VendorID) &&
		NormalizeHexID(id.ProductID) == NormalizeHexID(dev.ProductID) {
		score += WeightVendorProduct
	}

	if sharesUUID(id.ServiceUUIDs, dev.ServiceUUIDs) {
		score += WeightServiceUUID
	}

	if id.MACPrefix != "" && dev.Address != "" &&
		strings.HasPrefix(strings.ToLower(dev.Address), strings.ToLower(id.MACPrefix)) {
		score += WeightMACPrefix
	}

	if len(dev.ManufacturerData) > 0 {
		for _, sig := range id.Signatures {
			if len(sig) > 0 && bytes.Contains(dev.ManufacturerData, sig) {
				score += WeightManufacturer
				break
			}
		}
	}

	if re := id.nameRegexp(); re != nil && dev.Name != "" && re.MatchString(dev.Name) {
		score += WeightName
	}

	limit := id.ConfidenceScore
	if limit > MaxConfidence {
		limit = MaxConfidence
	}
	if limit < 0 {
		limit = 0
	}
	if score > limit {
		score = limit
	}
	return score
}

// BestMatch returns the highest scoring identifier clearing DefaultThreshold.
// Ties keep the earlier identifier.
func BestMatch(dev *ObservedDevice, ids []Identifier) (Result, bool) {
	return BestMatchWithThreshold(dev, ids, DefaultThreshold)
}

// BestMatchWithThreshold is BestMatch with a custom threshold.
func BestMatchWithThreshold(dev *ObservedDevice, ids []Identifier, threshold int) (Result, bool) {
	var best Result
	found := false
	for _, id := range ids {
		score, ok := ScoreWithThreshold(dev, id, threshold)
		if !ok {
			continue
		}
		if !found || score > best.Score {
			best = Result{Identifier: id, Score: score}
			found = true
		}
	}
	return best, found
}

// AllMatches returns every identifier clearing DefaultThreshold, highest score first.
func AllMatches(dev *ObservedDevice, ids []Identifier) []Result {
	var results []Result
	for _, id := range ids {
		if score, ok := Score(dev, id); ok {
			results = append(results, Result{Identifier: id, Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

func sharesUUID(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, u := range a {
		set[NormalizeUUID(u)] = struct{}{}
	}
	for _, u := range b {
		if _, ok := set[NormalizeUUID(u)]; ok {
			return true
		}
	}
	return false
}
