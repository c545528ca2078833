// Package predict runs the classifier on submitted form fields and records each prediction.
package predict

import (
	"errors"
	"fmt"

	"auditrisk/ml"
)

const (
	HighRisk = "High Risk"
	LowRisk  = "Low Risk"
)

// ErrModelUnavailable is returned by an Unavailable model for every prediction.
var ErrModelUnavailable = errors.New("model not loaded")

// Classifier is the inference half of ml.MLModel.
type Classifier interface {
	Predict(features []float64) (int, float64, error)
}

// Label is the raw class produced by the classifier.
type Label int

// Risk maps the class to its display name; only 1 is high risk.
func (l Label) Risk() string {
	if l == 1 {
		return HighRisk
	}
	return LowRisk
}

// Model is a classifier loaded once at startup, or the reason it could not be.
// It is immutable after construction and safe for concurrent use.
type Model struct {
	clf     Classifier
	loadErr error
}

func NewModel(clf Classifier) *Model {
	if clf == nil {
		return Unavailable(ErrModelUnavailable)
	}
	return &Model{clf: clf}
}

// Unavailable returns a Model that refuses every prediction.
func Unavailable(cause error) *Model {
	if cause == nil {
		cause = ErrModelUnavailable
	}
	return &Model{loadErr: cause}
}

// LoadModel reads the artifact; failures produce an Unavailable model rather than an error.
func LoadModel(modelType, path string) *Model {
	clf, err := ml.LoadModel(modelType, path)
	if err != nil {
		return Unavailable(fmt.Errorf("load %s model from %s: %w", modelType, path, err))
	}
	return NewModel(clf)
}

func (m *Model) Available() bool {
	return m != nil && m.clf != nil
}

// Err returns why the model is unavailable, or nil.
func (m *Model) Err() error {
	if m == nil {
		return ErrModelUnavailable
	}
	return m.loadErr
}

// Predict classifies f in the trained feature order.
func (m *Model) Predict(f ml.AuditFeatures) (Label, float64, error) {
	if !m.Available() {
		return 0, 0, ErrModelUnavailable
	}
	label, confidence, err := m.clf.Predict(ml.FeatureVector(f))
	if err != nil {
		return 0, 0, err
	}
	return Label(label), confidence, nil
}

// WithCache wraps an available model's classifier in an LRU of the given size.
// An unavailable model is returned unchanged.
func (m *Model) WithCache(size int) (*Model, error) {
	if !m.Available() {
		return m, nil
	}
	cached, err := NewCachedClassifier(m.clf, size)
	if err != nil {
		return nil, err
	}
	return NewModel(cached), nil
}
