package ml

import (
	"errors"
	"math"
	"math/rand"

	"auditrisk/pipeline"
)

// TrainingSet holds the selected feature columns and binary target of a dataset.
type TrainingSet struct {
	Features [][]float64
	Labels   []int
	// Skipped counts rows dropped because a feature or the target was missing or non-numeric.
	Skipped int
}

func BuildTrainingSet(table *pipeline.Table) (*TrainingSet, error) {
	if table == nil || len(table.Rows) == 0 {
		return nil, errors.New("dataset has no rows")
	}
	names := FeatureNames()
	columns := make([][]string, len(names))
	for i, name := range names {
		values, err := table.Column(name)
		if err != nil {
			return nil, err
		}
		columns[i] = values
	}
	target, err := table.Column(TargetColumn)
	if err != nil {
		return nil, err
	}

	set := &TrainingSet{}
	for row := range table.Rows {
		label, ok := pipeline.ParseNumeric(target[row])
		if !ok {
			set.Skipped++
			continue
		}
		vector := make([]float64, len(names))
		complete := true
		for i := range names {
			value, ok := pipeline.ParseNumeric(columns[i][row])
			if !ok {
				complete = false
				break
			}
			vector[i] = value
		}
		if !complete {
			set.Skipped++
			continue
		}
		set.Features = append(set.Features, vector)
		set.Labels = append(set.Labels, int(label))
	}
	if len(set.Features) == 0 {
		return nil, errors.New("no complete rows in dataset")
	}
	return set, nil
}

// SplitDataset shuffles with a fixed seed so the held-out set is reproducible.
func SplitDataset(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(len(features))

	split := int(math.Round(float64(len(features)) * (1 - testRatio)))
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}

// Evaluation summarises held-out performance with label 1 as the positive class.
type Evaluation struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	Samples   int
}

func Evaluate(model MLModel, testX [][]float64, testY []int) Evaluation {
	eval := Evaluation{Samples: len(testX)}
	if len(testX) == 0 {
		return eval
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, feature := range testX {
		label, _, err := model.Predict(feature)
		if err != nil {
			continue
		}
		if label == testY[i] {
			correct++
		}
		if label == 1 {
			predictedPositive++
		}
		if testY[i] == 1 {
			actualPositive++
			if label == 1 {
				truePositive++
			}
		}
	}

	eval.Accuracy = float64(correct) / float64(len(testX))
	if predictedPositive > 0 {
		eval.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		eval.Recall = float64(truePositive) / float64(actualPositive)
	}
	return eval
}
