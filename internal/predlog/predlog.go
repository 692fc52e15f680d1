package predlog

import (
	"context"
	"time"

	"github.com/Skufu/cardioscore/internal/report"
	"github.com/Skufu/cardioscore/internal/risk"
)

// Statistics summarises every logged prediction.
type Statistics struct {
	Total              int64               `json:"total_predictions"`
	Positive           int64               `json:"positive_predictions"`
	Negative           int64               `json:"negative_predictions"`
	AverageProbability float64             `json:"average_probability"`
	First              *time.Time          `json:"first_prediction,omitempty"`
	Last               *time.Time          `json:"last_prediction,omitempty"`
	Tiers              map[risk.Tier]int64 `json:"risk_tiers"`
}

// Store is an append-only prediction log.
type Store interface {
	report.PredictionLogger
	Statistics(ctx context.Context) (Statistics, error)
}

func emptyTiers() map[risk.Tier]int64 {
	return map[risk.Tier]int64{
		risk.TierLow:      0,
		risk.TierModerate: 0,
		risk.TierHigh:     0,
		risk.TierCritical: 0,
	}
}
