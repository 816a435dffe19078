package gap

import "math"

// TierLabel names a popularity band.
type TierLabel string

// Tier is a right-open popularity band [Min, Max).
type Tier struct {
	Label TierLabel
	Min   float64
	Max   float64
}

// Tiers lists the popularity bands from most to least popular.
var Tiers = [...]Tier{
	{Label: "[100,∞)", Min: 100, Max: math.Inf(1)},
	{Label: "[50,100)", Min: 50, Max: 100},
	{Label: "[10,50)", Min: 10, Max: 50},
	{Label: "[1,10)", Min: 1, Max: 10},
	{Label: "[0,1)", Min: 0, Max: 1},
}

// priorityTierCount is how many of the leading tiers drive recommendations.
const priorityTierCount = 3

// Contains reports whether popularity falls inside the band.
func (t Tier) Contains(popularity float64) bool {
	return popularity >= t.Min && popularity < t.Max
}

// TierFor returns the band holding popularity. Negative and NaN values have
// no band.
func TierFor(popularity float64) (TierLabel, bool) {
	for _, tier := range Tiers {
		if tier.Contains(popularity) {
			return tier.Label, true
		}
	}
	return "", false
}

// TierStat is the coverage of one popularity band.
type TierStat struct {
	Total           int     `json:"total"`
	Missing         int     `json:"missing"`
	Have            int     `json:"have"`
	CoveragePercent float64 `json:"coverage_percent"`
}

func (s *TierStat) finalize() {
	s.Have = s.Total - s.Missing
	if s.Total == 0 {
		s.CoveragePercent = 100.0
		return
	}
	s.CoveragePercent = float64(s.Have) / float64(s.Total) * 100
}

func emptyTierStats() map[TierLabel]TierStat {
	stats := make(map[TierLabel]TierStat, len(Tiers))
	for _, tier := range Tiers {
		stats[tier.Label] = TierStat{}
	}
	return stats
}
