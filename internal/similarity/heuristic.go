package similarity

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	categoryPoints = 40.0
	timePoints     = 20.0
	keywordPoints  = 40.0

	exactLocationBonus   = 10
	partialLocationBonus = 7

	// decay per six elapsed hours
	hourlyDecayBase = 0.95
	decayWindow     = 6.0
	fallbackDecay   = 0.1

	maxScore = 100
)

// Attributes is the subset of an item the heuristic scorer looks at.
// A zero CreatedAt is treated as an unknown timestamp.
type Attributes struct {
	Category  string
	Tags      []string
	Location  string
	CreatedAt time.Time
}

// HeuristicScore rates how plausible it is that found is the item described
// by lost, as an integer in [0, 100].
//
//	category  40 when both are set and equal
//	time      20 * 0.95^(hours/6); 0 if found predates lost; 0.1 decay if unknown
//	keywords  40 * Jaccard(tags)
//	location  +10 exact, +7 substring (trimmed, case-folded)
func HeuristicScore(lost, found Attributes) int {
	var category float64
	if lost.Category != "" && found.Category != "" && lost.Category == found.Category {
		category = categoryPoints
	}

	total := category + timePoints*timeDecay(lost.CreatedAt, found.CreatedAt) + keywordPoints*Jaccard(lost.Tags, found.Tags)
	score := int(math.RoundToEven(total)) + LocationBonus(lost.Location, found.Location)

	if score > maxScore {
		return maxScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func timeDecay(lost, found time.Time) float64 {
	if lost.IsZero() || found.IsZero() {
		return fallbackDecay
	}
	if found.Before(lost) {
		return 0
	}
	hours := found.Sub(lost).Hours()
	return math.Pow(hourlyDecayBase, hours/decayWindow)
}

// LocationBonus compares two free-text locations after trimming and case
// folding. Empty locations never earn a bonus.
func LocationBonus(a, b string) int {
	a, b = NormalizeLocation(a), NormalizeLocation(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return exactLocationBonus
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return partialLocationBonus
	}
	return 0
}

// NormalizeLocation trims and case-folds a location string.
func NormalizeLocation(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}
