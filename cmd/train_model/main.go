package main

import (
	"fmt"
	"os"
	"path/filepath"

	"auditrisk/logging"
	"auditrisk/ml"
	"auditrisk/pipeline"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type trainOptions struct {
	Dataset   string
	ModelPath string
	ModelType string
	Trees     int
	MaxDepth  int
	TestRatio float64
	Seed      int64
	LogLevel  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := trainOptions{}
	cmd := &cobra.Command{
		Use:           "train_model",
		Short:         "Train the audit risk classifier and save its artifact",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Config{Level: opts.LogLevel, Format: "console"})
			if err != nil {
				return err
			}
			defer logger.Sync()

			if _, err := train(opts, logger); err != nil {
				logger.Error("training failed", zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model saved to %s\n", opts.ModelPath)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Dataset, "dataset", "audit_data.csv", "training dataset (CSV)")
	flags.StringVar(&opts.ModelPath, "model_path", filepath.Join("models", "risk_model.json"), "model output path")
	flags.StringVar(&opts.ModelType, "model_type", ml.ModelTypeRandomForest, "decision_tree or random_forest")
	flags.IntVar(&opts.Trees, "trees", 100, "number of trees in the forest")
	flags.IntVar(&opts.MaxDepth, "max_depth", 10, "max tree depth")
	flags.Float64Var(&opts.TestRatio, "test_ratio", 0.2, "held-out fraction")
	flags.Int64Var(&opts.Seed, "seed", 42, "random seed for the split and the forest")
	flags.StringVar(&opts.LogLevel, "log_level", "info", "log level")
	return cmd
}

func train(opts trainOptions, logger *zap.Logger) (ml.Evaluation, error) {
	table, err := pipeline.LoadTable(opts.Dataset)
	if err != nil {
		return ml.Evaluation{}, err
	}
	set, err := ml.BuildTrainingSet(table)
	if err != nil {
		return ml.Evaluation{}, fmt.Errorf("build training set: %w", err)
	}
	if set.Skipped > 0 {
		logger.Warn("skipped incomplete rows", zap.Int("rows", set.Skipped))
	}

	trainX, trainY, testX, testY := ml.SplitDataset(set.Features, set.Labels, opts.TestRatio, opts.Seed)

	var model ml.MLModel
	switch opts.ModelType {
	case ml.ModelTypeDecisionTree:
		model = ml.NewDecisionTree(opts.MaxDepth)
	case ml.ModelTypeRandomForest:
		model = ml.NewRandomForest(opts.Trees, opts.MaxDepth, opts.Seed)
	default:
		return ml.Evaluation{}, fmt.Errorf("%w: %s", ml.ErrUnsupportedModel, opts.ModelType)
	}
	if err := model.Train(trainX, trainY); err != nil {
		return ml.Evaluation{}, fmt.Errorf("train model: %w", err)
	}

	eval := ml.Evaluate(model, testX, testY)
	logger.Info("model evaluated",
		zap.String("model_type", opts.ModelType),
		zap.Int("train_samples", len(trainX)),
		zap.Int("test_samples", eval.Samples),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Float64("precision", eval.Precision),
		zap.Float64("recall", eval.Recall))

	if err := os.MkdirAll(filepath.Dir(opts.ModelPath), 0o755); err != nil {
		return eval, fmt.Errorf("create model dir: %w", err)
	}
	if err := model.Save(opts.ModelPath); err != nil {
		return eval, fmt.Errorf("save model: %w", err)
	}
	return eval, nil
}
