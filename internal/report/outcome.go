package report

import (
	"time"

	"github.com/Skufu/cardioscore/internal/risk"
)

// Outcome is the result of one prediction request. History entries and
// prediction loggers receive their own copies, so mutating one never affects
// another.
type Outcome struct {
	ID                 string             `json:"id"`
	CreatedAt          time.Time          `json:"created_at"`
	Label              int                `json:"label"`
	ProbabilityDisease float64            `json:"probability_disease"`
	ProbabilitySafe    float64            `json:"probability_safe"`
	Confidence         *float64           `json:"confidence"`
	ConfidenceBand     string             `json:"confidence_band,omitempty"`
	RiskTier           risk.Tier          `json:"risk_tier"`
	HealthScore        float64            `json:"health_score"`
	Recommendations    []string           `json:"recommendations"`
	Features           map[string]float64 `json:"features,omitempty"`
}

// ConfidenceKnown reports whether the classifier honoured the probability
// contract for this outcome.
func (o Outcome) ConfidenceKnown() bool {
	return o.Confidence != nil
}

// Clone returns a deep copy of o.
func (o Outcome) Clone() Outcome {
	c := o
	if o.Confidence != nil {
		v := *o.Confidence
		c.Confidence = &v
	}
	if o.Recommendations != nil {
		c.Recommendations = append([]string(nil), o.Recommendations...)
	}
	if o.Features != nil {
		c.Features = make(map[string]float64, len(o.Features))
		for k, v := range o.Features {
			c.Features[k] = v
		}
	}
	return c
}

func (o Outcome) Positive() bool {
	return o.Label == 1
}

// Entry is what a caller-owned history receives.
type Entry struct {
	Patient string  `json:"patient"`
	Outcome Outcome `json:"outcome"`
}
