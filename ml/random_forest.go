package ml

import (
	"math"
	"math/rand"
)

const defaultNumTrees = 100

// RandomForest is a bagged ensemble of DecisionTrees voting on the class label.
type RandomForest struct {
	NumTrees int
	MaxDepth int
	Seed     int64

	trees [][]TreeNode
}

func NewRandomForest(numTrees, maxDepth int, seed int64) *RandomForest {
	return &RandomForest{NumTrees: numTrees, MaxDepth: maxDepth, Seed: seed}
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return ErrTrainingSetMismatch
	}
	if rf.NumTrees <= 0 {
		rf.NumTrees = defaultNumTrees
	}

	rng := rand.New(rand.NewSource(rf.Seed))
	maxFeatures := int(math.Sqrt(float64(len(features[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	trees := make([][]TreeNode, 0, rf.NumTrees)
	sampleX := make([][]float64, len(features))
	sampleY := make([]int, len(labels))
	for t := 0; t < rf.NumTrees; t++ {
		for i := range sampleX {
			pick := rng.Intn(len(features))
			sampleX[i] = features[pick]
			sampleY[i] = labels[pick]
		}
		tree := &DecisionTree{
			MaxDepth:        rf.MaxDepth,
			MinSamplesSplit: 2,
			MaxFeatures:     maxFeatures,
			rng:             rand.New(rand.NewSource(rng.Int63())),
		}
		if err := tree.Train(sampleX, sampleY); err != nil {
			return err
		}
		trees = append(trees, tree.nodes)
	}
	rf.trees = trees
	return nil
}

// Predict returns the majority vote and the share of trees that cast it.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(rf.trees) == 0 {
		return 0, 0, ErrNotTrained
	}
	votes := make(map[int]int)
	for _, nodes := range rf.trees {
		label, _, err := walk(nodes, features)
		if err != nil {
			return 0, 0, err
		}
		votes[label]++
	}
	bestLabel, bestVotes := 0, -1
	for label, count := range votes {
		if count > bestVotes || (count == bestVotes && label < bestLabel) {
			bestLabel, bestVotes = label, count
		}
	}
	return bestLabel, float64(bestVotes) / float64(len(rf.trees)), nil
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrNotTrained
	}
	return writeArtifact(path, ModelTypeRandomForest, rf.trees)
}

func (rf *RandomForest) Load(path string) error {
	a, err := readArtifact(path, ModelTypeRandomForest)
	if err != nil {
		return err
	}
	rf.trees = a.Trees
	rf.NumTrees = len(a.Trees)
	return nil
}
