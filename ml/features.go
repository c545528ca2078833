package ml

import "fmt"

// Feature column names in the order the model was trained on.
const (
	FeatureAuditRisk    = "Audit_Risk"
	FeatureInherentRisk = "Inherent_Risk"
	FeatureScore        = "Score"
	FeatureTotal        = "TOTAL"
	FeatureMoneyValue   = "Money_Value"
)

// TargetColumn is the dataset column holding the binary risk class.
const TargetColumn = "Risk"

// AuditFeatures is one row of classifier input.
type AuditFeatures struct {
	AuditRisk    float64
	InherentRisk float64
	Score        float64
	Total        float64
	MoneyValue   float64
}

func FeatureNames() []string {
	return []string{
		FeatureAuditRisk,
		FeatureInherentRisk,
		FeatureScore,
		FeatureTotal,
		FeatureMoneyValue,
	}
}

func FeatureVector(f AuditFeatures) []float64 {
	return []float64{
		f.AuditRisk,
		f.InherentRisk,
		f.Score,
		f.Total,
		f.MoneyValue,
	}
}

// FeaturesFromVector is the inverse of FeatureVector.
func FeaturesFromVector(values []float64) (AuditFeatures, error) {
	if len(values) != len(FeatureNames()) {
		return AuditFeatures{}, fmt.Errorf("expected %d feature values, got %d", len(FeatureNames()), len(values))
	}
	return AuditFeatures{
		AuditRisk:    values[0],
		InherentRisk: values[1],
		Score:        values[2],
		Total:        values[3],
		MoneyValue:   values[4],
	}, nil
}

func sameFeatureOrder(names []string) bool {
	expected := FeatureNames()
	if len(names) != len(expected) {
		return false
	}
	for i := range expected {
		if names[i] != expected[i] {
			return false
		}
	}
	return true
}
