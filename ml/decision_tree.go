package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const defaultMaxDepth = 10

var errInvalidTree = errors.New("invalid tree state")

type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures caps how many features are evaluated per split; 0 evaluates all of them.
	MaxFeatures int

	rng   *rand.Rand
	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Confidence float64 `json:"confidence"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{MaxDepth: maxDepth, MinSamplesSplit: 2}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return ErrTrainingSetMismatch
	}
	width := len(features[0])
	for _, row := range features {
		if len(row) != width {
			return ErrFeatureCount
		}
	}
	if dt.MaxDepth <= 0 {
		dt.MaxDepth = defaultMaxDepth
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	if dt.rng == nil {
		dt.rng = rand.New(rand.NewSource(1))
	}

	idx := make([]int, len(features))
	for i := range idx {
		idx[i] = i
	}
	dt.nodes = dt.buildNode(features, labels, idx, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.nodes) == 0 {
		return 0, 0, ErrNotTrained
	}
	return walk(dt.nodes, features)
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrNotTrained
	}
	return writeArtifact(path, ModelTypeDecisionTree, [][]TreeNode{dt.nodes})
}

func (dt *DecisionTree) Load(path string) error {
	a, err := readArtifact(path, ModelTypeDecisionTree)
	if err != nil {
		return err
	}
	if len(a.Trees) != 1 {
		return fmt.Errorf("%w: decision tree artifact holds %d trees", errInvalidTree, len(a.Trees))
	}
	dt.nodes = a.Trees[0]
	return nil
}

func walk(nodes []TreeNode, features []float64) (int, float64, error) {
	idx := 0
	for {
		node := nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, ErrFeatureCount
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(nodes) {
			return 0, 0, errInvalidTree
		}
	}
}

// validateNodes rejects trees whose child links could loop or escape the slice.
func validateNodes(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return ErrNotTrained
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(FeatureNames()) {
			return fmt.Errorf("%w: node %d splits on feature %d", errInvalidTree, i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("%w: node %d has bad children", errInvalidTree, i)
		}
	}
	return nil
}

func (dt *DecisionTree) buildNode(features [][]float64, labels []int, idx []int, depth int) []TreeNode {
	label, confidence := majorityLabel(labels, idx)
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		Confidence: confidence,
		IsLeaf:     true,
	}}
	if depth >= dt.MaxDepth || len(idx) < dt.MinSamplesSplit || isPure(labels, idx) {
		return leaf
	}

	bestFeature, threshold, ok := dt.findBestSplit(features, labels, idx)
	if !ok {
		return leaf
	}
	left, right := partition(features, idx, bestFeature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return leaf
	}

	leftNodes := dt.buildNode(features, labels, left, depth+1)
	rightNodes := dt.buildNode(features, labels, right, depth+1)

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: label,
		Confidence: confidence,
	})
	nodes = append(nodes, shiftChildren(leftNodes, 1)...)
	nodes = append(nodes, shiftChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// shiftChildren rebases subtree-relative child links once the subtree is placed at offset.
func shiftChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

func (dt *DecisionTree) candidateFeatures(width int) []int {
	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= width {
		all := make([]int, width)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return dt.rng.Perm(width)[:dt.MaxFeatures]
}

func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, idx []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	total := len(idx)

	sorted := make([]int, total)
	for _, featureIdx := range dt.candidateFeatures(len(features[idx[0]])) {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})

		leftCounts := make(map[int]int)
		rightCounts := countLabels(labels, sorted)
		for i := 0; i < total-1; i++ {
			label := labels[sorted[i]]
			leftCounts[label]++
			rightCounts[label]--

			current := features[sorted[i]][featureIdx]
			next := features[sorted[i+1]][featureIdx]
			if current == next {
				continue
			}
			leftN, rightN := i+1, total-i-1
			impurity := (float64(leftN)*gini(leftCounts, leftN) + float64(rightN)*gini(rightCounts, rightN)) / float64(total)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = current + (next-current)/2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func partition(features [][]float64, idx []int, featureIdx int, threshold float64) (left, right []int) {
	for _, i := range idx {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func countLabels(labels []int, idx []int) map[int]int {
	counts := make(map[int]int)
	for _, i := range idx {
		counts[labels[i]]++
	}
	return counts
}

func gini(counts map[int]int, n int) float64 {
	if n == 0 {
		return 0
	}
	// integer sum keeps the result independent of map iteration order
	sumSquares := 0
	for _, count := range counts {
		sumSquares += count * count
	}
	return 1 - float64(sumSquares)/float64(n*n)
}

// majorityLabel breaks ties towards the smaller label so training is deterministic.
func majorityLabel(labels []int, idx []int) (int, float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	counts := countLabels(labels, idx)
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount || (count == bestCount && label < bestLabel) {
			bestLabel = label
			bestCount = count
		}
	}
	return bestLabel, float64(bestCount) / float64(len(idx))
}

func isPure(labels []int, idx []int) bool {
	if len(idx) == 0 {
		return true
	}
	first := labels[idx[0]]
	for _, i := range idx[1:] {
		if labels[i] != first {
			return false
		}
	}
	return true
}
