package classifier

import (
	"errors"
	"fmt"
)

// Node is one entry of a flattened decision tree. Split nodes send
// x[Feature] <= Threshold to Left, everything else to Right.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Leaf      bool      `json:"leaf,omitempty"`
	Value     []float64 `json:"value,omitempty"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest averages per-tree class distributions, the way scikit-learn's
// RandomForestClassifier does.
type Forest struct {
	trees    []Tree
	features int
}

func NewForest(trees []Tree, numFeatures int) (*Forest, error) {
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	normalized := make([]Tree, len(trees))
	for ti, tree := range trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", ti)
		}
		nodes := make([]Node, len(tree.Nodes))
		for ni, n := range tree.Nodes {
			if n.Leaf {
				dist, err := normalizeLeaf(n.Value)
				if err != nil {
					return nil, fmt.Errorf("tree %d node %d: %w", ti, ni, err)
				}
				n.Value = dist
				nodes[ni] = n
				continue
			}
			if n.Feature < 0 || n.Feature >= numFeatures {
				return nil, fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			// children must follow their parent so traversal always terminates
			if n.Left <= ni || n.Right <= ni || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("tree %d node %d: invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
			nodes[ni] = n
		}
		normalized[ti] = Tree{Nodes: nodes}
	}
	return &Forest{trees: normalized, features: numFeatures}, nil
}

func normalizeLeaf(value []float64) ([]float64, error) {
	if len(value) != 2 {
		return nil, fmt.Errorf("leaf must have 2 class weights, got %d", len(value))
	}
	if value[0] < 0 || value[1] < 0 {
		return nil, errors.New("leaf weights must be non-negative")
	}
	total := value[0] + value[1]
	if total == 0 {
		return nil, errors.New("leaf weights sum to zero")
	}
	return []float64{value[0] / total, value[1] / total}, nil
}

func (f *Forest) NumFeatures() int { return f.features }

func (f *Forest) NumTrees() int { return len(f.trees) }

// SplitCounts reports how many split nodes test each feature.
func (f *Forest) SplitCounts() []int {
	counts := make([]int, f.features)
	for _, tree := range f.trees {
		for _, n := range tree.Nodes {
			if !n.Leaf {
				counts[n.Feature]++
			}
		}
	}
	return counts
}

func (f *Forest) PredictProba(x []float64) ([2]float64, error) {
	if len(x) != f.features {
		return [2]float64{}, ErrFeatureCountMismatch
	}
	var proba [2]float64
	for _, tree := range f.trees {
		leaf := tree.leaf(x)
		proba[0] += leaf.Value[0]
		proba[1] += leaf.Value[1]
	}
	n := float64(len(f.trees))
	proba[0] /= n
	proba[1] /= n
	return proba, nil
}

func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if proba[1] > proba[0] {
		return 1, nil
	}
	return 0, nil
}

func (t Tree) leaf(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
