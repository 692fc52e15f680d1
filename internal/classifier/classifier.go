package classifier

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/Skufu/cardioscore/internal/features"
)

var (
	ErrModelUnavailable     = errors.New("model unavailable")
	ErrFeatureCountMismatch = errors.New("feature count mismatch")
	ErrProbabilityContract  = errors.New("model violated probability contract")
)

// SumTolerance bounds |p0+p1-1| for a well-behaved model.
const SumTolerance = 1e-6

// Model is a pre-trained binary classifier treated as a black box.
type Model interface {
	Predict(x []float64) (int, error)
	PredictProba(x []float64) ([2]float64, error)
	NumFeatures() int
}

// Score is the raw classifier output after contract checks.
type Score struct {
	Label       int
	ProbDisease float64
	ProbSafe    float64
	// SumValid is false when predict_proba did not sum to 1; the
	// probabilities are then normalised around ProbDisease.
	SumValid bool
}

type Adapter struct {
	model Model
	log   logrus.FieldLogger
}

func NewAdapter(model Model, log logrus.FieldLogger) *Adapter {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Adapter{model: model, log: log}
}

func (a *Adapter) Ready() bool {
	return a != nil && a.model != nil
}

func (a *Adapter) Score(f *features.PatientFeatures) (Score, error) {
	if f == nil {
		return Score{}, fmt.Errorf("score: nil features: %w", ErrFeatureCountMismatch)
	}
	return a.ScoreVector(f.Vector())
}

func (a *Adapter) ScoreVector(vec []float64) (Score, error) {
	if !a.Ready() {
		return Score{}, ErrModelUnavailable
	}
	if len(vec) != features.VectorLen {
		return Score{}, fmt.Errorf("got %d features, want %d: %w", len(vec), features.VectorLen, ErrFeatureCountMismatch)
	}
	if n := a.model.NumFeatures(); n != features.VectorLen {
		return Score{}, fmt.Errorf("model expects %d features, want %d: %w", n, features.VectorLen, ErrFeatureCountMismatch)
	}

	label, err := a.model.Predict(vec)
	if err != nil {
		return Score{}, fmt.Errorf("predict: %w", err)
	}
	if label != 0 && label != 1 {
		return Score{}, fmt.Errorf("label %d: %w", label, ErrProbabilityContract)
	}

	proba, err := a.model.PredictProba(vec)
	if err != nil {
		return Score{}, fmt.Errorf("predict proba: %w", err)
	}
	for _, p := range proba {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Score{}, fmt.Errorf("non-finite probability %v: %w", proba, ErrProbabilityContract)
		}
	}

	score := Score{Label: label, ProbDisease: clamp01(proba[1]), SumValid: true}
	if sum := proba[0] + proba[1]; math.Abs(sum-1) > SumTolerance {
		score.SumValid = false
		a.log.WithFields(logrus.Fields{
			"p0":  proba[0],
			"p1":  proba[1],
			"sum": sum,
		}).Warn("predict_proba does not sum to 1; confidence unknown")
	}
	score.ProbSafe = 1 - score.ProbDisease
	return score, nil
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
