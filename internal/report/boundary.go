package report

import (
	"context"

	"github.com/Skufu/cardioscore/internal/features"
)

// History is the caller-owned collection outcomes are appended to.
type History interface {
	Append(ctx context.Context, entry Entry) error
}

// HistoryFunc adapts a plain callback to History.
type HistoryFunc func(ctx context.Context, entry Entry) error

func (f HistoryFunc) Append(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// PredictionLogger receives an append-only record of every scored request.
type PredictionLogger interface {
	LogPrediction(ctx context.Context, f *features.PatientFeatures, o Outcome) error
}
