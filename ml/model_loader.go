package ml

import "fmt"

func LoadModel(modelType, path string) (MLModel, error) {
	var model MLModel
	switch modelType {
	case ModelTypeDecisionTree:
		model = &DecisionTree{}
	case ModelTypeRandomForest:
		model = &RandomForest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
