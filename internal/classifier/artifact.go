package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

const (
	TypeRandomForest = "random_forest"
	TypeLogistic     = "logistic"
)

// Metadata describes the trained artifact for display.
type Metadata struct {
	Name      string  `json:"name"`
	Version   string  `json:"version"`
	Algorithm string  `json:"algorithm,omitempty"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	TrainedAt string  `json:"trained_at,omitempty"`
	// FeatureImportances are the training-time importances keyed by
	// feature name, when the exporter recorded them.
	FeatureImportances map[string]float64 `json:"feature_importances,omitempty"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type artifactFile struct {
	Model struct {
		Type         string   `json:"type"`
		FeatureNames []string `json:"feature_names"`
		Trees        []Tree   `json:"trees,omitempty"`
		Weights      *struct {
			Bias         float64   `json:"bias"`
			Coefficients []float64 `json:"coefficients"`
		} `json:"weights,omitempty"`
	} `json:"model"`
	Metadata Metadata `json:"metadata"`
}

// Artifact is a classifier deserialized from disk.
type Artifact struct {
	Type         string
	FeatureNames []string
	Metadata     Metadata
	model        Model
}

func (a *Artifact) Model() Model {
	if a == nil {
		return nil
	}
	return a.model
}

// Load reads a JSON artifact and checks its feature order against want.
// Every failure wraps ErrModelUnavailable.
func Load(path string, want []string) (*Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %v: %w", path, err, ErrModelUnavailable)
	}
	return Parse(content, want)
}

func Parse(content []byte, want []string) (*Artifact, error) {
	var file artifactFile
	if err := json.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode artifact: %v: %w", err, ErrModelUnavailable)
	}

	names := file.Model.FeatureNames
	if len(want) > 0 {
		if len(names) != len(want) {
			return nil, fmt.Errorf("artifact has %d features, schema has %d: %w", len(names), len(want), ErrModelUnavailable)
		}
		for i := range want {
			if names[i] != want[i] {
				return nil, fmt.Errorf("artifact feature %d is %q, schema expects %q: %w", i, names[i], want[i], ErrModelUnavailable)
			}
		}
	}

	for name, v := range file.Metadata.FeatureImportances {
		if !containsName(names, name) {
			return nil, fmt.Errorf("importance for unknown feature %q: %w", name, ErrModelUnavailable)
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("importance for %q is %v: %w", name, v, ErrModelUnavailable)
		}
	}

	var model Model
	switch file.Model.Type {
	case TypeRandomForest:
		forest, err := NewForest(file.Model.Trees, len(names))
		if err != nil {
			return nil, fmt.Errorf("build forest: %v: %w", err, ErrModelUnavailable)
		}
		model = forest
	case TypeLogistic:
		if file.Model.Weights == nil {
			return nil, fmt.Errorf("logistic artifact missing weights: %w", ErrModelUnavailable)
		}
		w := file.Model.Weights
		if len(w.Coefficients) != len(names) {
			return nil, fmt.Errorf("logistic artifact has %d coefficients for %d features: %w", len(w.Coefficients), len(names), ErrModelUnavailable)
		}
		model = &Logistic{Bias: w.Bias, Coefficients: w.Coefficients}
	default:
		return nil, fmt.Errorf("unsupported model type %q: %w", file.Model.Type, ErrModelUnavailable)
	}

	return &Artifact{
		Type:         file.Model.Type,
		FeatureNames: names,
		Metadata:     file.Metadata,
		model:        model,
	}, nil
}

func (a *Artifact) NumFeatures() int { return len(a.FeatureNames) }

// NumTrees is the ensemble size, or 0 for non-forest models.
func (a *Artifact) NumTrees() int {
	if f, ok := a.model.(*Forest); ok {
		return f.NumTrees()
	}
	return 0
}

// Importances ranks features, most important first. Recorded training
// importances win; otherwise a forest reports its share of split nodes and a
// logistic model its share of absolute coefficient weight. Ties keep vector
// order.
func (a *Artifact) Importances() []FeatureImportance {
	raw := make([]float64, len(a.FeatureNames))
	switch m := a.model.(type) {
	case *Forest:
		for i, n := range m.SplitCounts() {
			raw[i] = float64(n)
		}
	case *Logistic:
		for i, c := range m.Coefficients {
			raw[i] = math.Abs(c)
		}
	}
	if len(a.Metadata.FeatureImportances) > 0 {
		for i, name := range a.FeatureNames {
			raw[i] = a.Metadata.FeatureImportances[name]
		}
	}

	var total float64
	for _, v := range raw {
		total += v
	}
	out := make([]FeatureImportance, len(a.FeatureNames))
	for i, name := range a.FeatureNames {
		out[i] = FeatureImportance{Feature: name}
		if total > 0 {
			out[i].Importance = raw[i] / total
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Logistic is a linear model with a sigmoid link.
type Logistic struct {
	Bias         float64
	Coefficients []float64
}

func (l *Logistic) NumFeatures() int { return len(l.Coefficients) }

func (l *Logistic) PredictProba(x []float64) ([2]float64, error) {
	if len(x) != len(l.Coefficients) {
		return [2]float64{}, ErrFeatureCountMismatch
	}
	sum := l.Bias
	for i, c := range l.Coefficients {
		sum += c * x[i]
	}
	p := sigmoid(sum)
	return [2]float64{1 - p, p}, nil
}

func (l *Logistic) Predict(x []float64) (int, error) {
	proba, err := l.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if proba[1] >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
