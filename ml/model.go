package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeRandomForest = "random_forest"

	// ArtifactFormatVersion is bumped whenever the on-disk layout changes.
	ArtifactFormatVersion = 1
)

var (
	ErrNotTrained          = errors.New("model not trained")
	ErrUnsupportedModel    = errors.New("unsupported model type")
	ErrArtifactVersion     = errors.New("unsupported artifact format version")
	ErrFeatureOrder        = errors.New("artifact feature order does not match")
	ErrFeatureCount        = errors.New("feature vector length mismatch")
	ErrEmptyTrainingSet    = errors.New("features or labels empty")
	ErrTrainingSetMismatch = errors.New("features and labels size mismatch")
)

type MLModel interface {
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	Save(path string) error
	Load(path string) error
}

// artifact is the serialized form shared by every model type.
type artifact struct {
	FormatVersion int          `json:"format_version"`
	ModelType     string       `json:"model_type"`
	FeatureNames  []string     `json:"feature_names"`
	TrainedAt     time.Time    `json:"trained_at"`
	Trees         [][]TreeNode `json:"trees"`
}

func writeArtifact(path, modelType string, trees [][]TreeNode) error {
	payload, err := json.Marshal(artifact{
		FormatVersion: ArtifactFormatVersion,
		ModelType:     modelType,
		FeatureNames:  FeatureNames(),
		TrainedAt:     time.Now().UTC(),
		Trees:         trees,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func readArtifact(path, modelType string) (*artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if a.FormatVersion != ArtifactFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrArtifactVersion, a.FormatVersion)
	}
	if a.ModelType != modelType {
		return nil, fmt.Errorf("%w: artifact holds %q, want %q", ErrUnsupportedModel, a.ModelType, modelType)
	}
	if !sameFeatureOrder(a.FeatureNames) {
		return nil, fmt.Errorf("%w: %v", ErrFeatureOrder, a.FeatureNames)
	}
	if len(a.Trees) == 0 {
		return nil, ErrNotTrained
	}
	for i, nodes := range a.Trees {
		if err := validateNodes(nodes); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &a, nil
}
