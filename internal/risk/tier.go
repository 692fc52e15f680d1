package risk

import "math"

type Tier string

const (
	TierLow      Tier = "LOW"
	TierModerate Tier = "MODERATE"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

var severity = map[Tier]int{
	TierLow:      0,
	TierModerate: 1,
	TierHigh:     2,
	TierCritical: 3,
}

// Severity ranks tiers so LOW < MODERATE < HIGH < CRITICAL.
func (t Tier) Severity() int {
	return severity[t]
}

type Thresholds struct {
	Critical float64 `yaml:"critical" json:"critical"`
	High     float64 `yaml:"high" json:"high"`
	Moderate float64 `yaml:"moderate" json:"moderate"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 0.8, High: 0.6, Moderate: 0.4}
}

// Tier evaluates thresholds in descending order; the first match wins.
func (th Thresholds) Tier(p float64) Tier {
	switch {
	case p >= th.Critical:
		return TierCritical
	case p >= th.High:
		return TierHigh
	case p >= th.Moderate:
		return TierModerate
	default:
		return TierLow
	}
}

// HealthScore is 100 x (1 - p), clamped to [0, 100].
func HealthScore(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	score := 100 * (1 - p)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

const (
	ConfidenceLow      = "low"
	ConfidenceModerate = "moderate"
	ConfidenceHigh     = "high"
)

// ConfidenceBand buckets max(p0, p1) for display.
func ConfidenceBand(c float64) string {
	switch {
	case c >= 0.85:
		return ConfidenceHigh
	case c < 0.6:
		return ConfidenceLow
	default:
		return ConfidenceModerate
	}
}
