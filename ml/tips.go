package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"farecast/trips"
)

const (
	boostRounds       = 100
	boostMaxDepth     = 4
	boostLearningRate = 0.1
	tipZScoreCutoff   = 2.0
	minLeafSize       = 2
)

// TipModel predicts the expected tip for a trip distance with gradient
// boosted regression trees.
type TipModel struct {
	Base         float64     `json:"base"`
	LearningRate float64     `json:"learning_rate"`
	Trees        [][]regNode `json:"trees"`
}

type regNode struct {
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

// FitTips fits the boosted ensemble on trip distance versus tip amount.
// The input must carry both columns; rows whose tip z-score magnitude is 2
// or more are removed first.
func FitTips(cols trips.Columns) (*TipModel, error) {
	distances, ok := cols.Get("trip_distance")
	if !ok {
		return nil, fmt.Errorf("%w: missing column trip_distance", ErrInvalidInput)
	}
	tips, ok := cols.Get("tip_amount")
	if !ok {
		return nil, fmt.Errorf("%w: missing column tip_amount", ErrInvalidInput)
	}
	if len(distances) != len(tips) {
		return nil, fmt.Errorf("%w: column length mismatch", ErrInvalidInput)
	}

	x, y := removeTipOutliers(distances, tips)
	if len(x) < minLeafSize*2 {
		return nil, fmt.Errorf("%w: %d rows after outlier removal", ErrFit, len(x))
	}

	base := stat.Mean(y, nil)
	model := &TipModel{Base: base, LearningRate: boostLearningRate}

	predictions := make([]float64, len(y))
	for i := range predictions {
		predictions[i] = base
	}
	residuals := make([]float64, len(y))

	for round := 0; round < boostRounds; round++ {
		for i := range y {
			residuals[i] = y[i] - predictions[i]
		}
		tree := buildRegTree(x, residuals, 0, boostMaxDepth)
		model.Trees = append(model.Trees, tree)
		for i, xi := range x {
			predictions[i] += boostLearningRate * evalRegTree(tree, xi)
		}
	}
	return model, nil
}

// Predict runs single-row inference.
func (m *TipModel) Predict(distance float64) (float64, error) {
	if m == nil || len(m.Trees) == 0 {
		return 0, ErrNotFitted
	}
	out := m.Base
	for _, tree := range m.Trees {
		out += m.LearningRate * evalRegTree(tree, distance)
	}
	return out, nil
}

// Fitted reports whether the ensemble has been trained.
func (m *TipModel) Fitted() bool {
	return m != nil && len(m.Trees) > 0
}

// Save writes the ensemble as JSON.
func (m *TipModel) Save(path string) error {
	if !m.Fitted() {
		return ErrNotFitted
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a saved ensemble.
func (m *TipModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, m)
}

func removeTipOutliers(distances, tips []float64) ([]float64, []float64) {
	mean, std := stat.MeanStdDev(tips, nil)
	if std == 0 || math.IsNaN(std) {
		return distances, tips
	}
	var x, y []float64
	for i, tip := range tips {
		if math.Abs((tip-mean)/std) >= tipZScoreCutoff {
			continue
		}
		x = append(x, distances[i])
		y = append(y, tip)
	}
	return x, y
}

// buildRegTree grows a regression tree over a single feature, splitting at
// the node median and minimizing squared error, as a flat node array.
func buildRegTree(x, y []float64, depth, maxDepth int) []regNode {
	leaf := regNode{LeftChild: -1, RightChild: -1, Value: stat.Mean(y, nil), IsLeaf: true}
	if depth >= maxDepth || len(y) < minLeafSize*2 || !hasSpread(x) {
		return []regNode{leaf}
	}

	threshold := medianOf(x)
	var leftX, leftY, rightX, rightY []float64
	for i, xi := range x {
		if xi <= threshold {
			leftX = append(leftX, xi)
			leftY = append(leftY, y[i])
		} else {
			rightX = append(rightX, xi)
			rightY = append(rightY, y[i])
		}
	}
	if len(leftY) < minLeafSize || len(rightY) < minLeafSize {
		return []regNode{leaf}
	}

	leftNodes := buildRegTree(leftX, leftY, depth+1, maxDepth)
	rightNodes := buildRegTree(rightX, rightY, depth+1, maxDepth)

	root := regNode{
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		Value:      leaf.Value,
	}

	nodes := make([]regNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

func offsetChildren(nodes []regNode, offset int) []regNode {
	out := make([]regNode, len(nodes))
	for i, n := range nodes {
		if !n.IsLeaf {
			n.LeftChild += offset
			n.RightChild += offset
		}
		out[i] = n
	}
	return out
}

func evalRegTree(nodes []regNode, x float64) float64 {
	idx := 0
	for {
		node := nodes[idx]
		if node.IsLeaf {
			return node.Value
		}
		if x <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(nodes) {
			return node.Value
		}
	}
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
