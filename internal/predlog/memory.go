package predlog

import (
	"context"
	"sync"

	"github.com/Skufu/cardioscore/internal/features"
	"github.com/Skufu/cardioscore/internal/report"
)

type MemoryStore struct {
	mu       sync.RWMutex
	outcomes []report.Outcome
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) LogPrediction(_ context.Context, _ *features.PatientFeatures, o report.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *MemoryStore) Statistics(_ context.Context) (Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{Tiers: emptyTiers()}
	var sum float64
	for i := range m.outcomes {
		o := &m.outcomes[i]
		stats.Total++
		if o.Positive() {
			stats.Positive++
		} else {
			stats.Negative++
		}
		sum += o.ProbabilityDisease
		stats.Tiers[o.RiskTier]++

		at := o.CreatedAt
		if stats.First == nil || at.Before(*stats.First) {
			stats.First = &at
		}
		if stats.Last == nil || at.After(*stats.Last) {
			stats.Last = &at
		}
	}
	if stats.Total > 0 {
		stats.AverageProbability = sum / float64(stats.Total)
	}
	return stats, nil
}
