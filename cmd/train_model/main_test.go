package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"auditrisk/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Sector_score,Audit_Risk,Inherent_Risk,Score,TOTAL,Money_Value,Risk\n")
	for i := 0; i < 40; i++ {
		risk := i % 2
		base := float64(risk*10 + i%5)
		fmt.Fprintf(&b, "3.89,%.1f,%.1f,%.1f,%.1f,%.1f,%d\n", base, base+1, base/10, base+2, base*100, risk)
	}
	b.WriteString("3.89,,1,1,1,1,0\n")
	path := filepath.Join(t.TempDir(), "audit_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestTrainWritesLoadableArtifact(t *testing.T) {
	for _, modelType := range []string{ml.ModelTypeDecisionTree, ml.ModelTypeRandomForest} {
		t.Run(modelType, func(t *testing.T) {
			opts := trainOptions{
				Dataset:   writeDataset(t),
				ModelPath: filepath.Join(t.TempDir(), "models", "risk_model.json"),
				ModelType: modelType,
				Trees:     5,
				MaxDepth:  4,
				TestRatio: 0.2,
				Seed:      42,
			}

			eval, err := train(opts, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, 8, eval.Samples)
			assert.InDelta(t, 1.0, eval.Accuracy, 1e-9)

			model, err := ml.LoadModel(modelType, opts.ModelPath)
			require.NoError(t, err)
			label, _, err := model.Predict([]float64{14, 15, 1.4, 16, 1400})
			require.NoError(t, err)
			assert.Equal(t, 1, label)
		})
	}
}

func TestTrainErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := train(trainOptions{Dataset: filepath.Join(dir, "missing.csv"), ModelType: ml.ModelTypeDecisionTree}, zap.NewNop())
	assert.Error(t, err)

	_, err = train(trainOptions{Dataset: writeDataset(t), ModelType: "svm", ModelPath: filepath.Join(dir, "m.json")}, zap.NewNop())
	assert.ErrorIs(t, err, ml.ErrUnsupportedModel)
}

func TestRootCommand(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "risk_model.json")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--dataset", writeDataset(t),
		"--model_path", modelPath,
		"--model_type", ml.ModelTypeDecisionTree,
		"--log_level", "error",
	})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), modelPath)
	assert.FileExists(t, modelPath)
}
