package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auditrisk/config"
	qhttp "auditrisk/http"
	"auditrisk/logging"
	"auditrisk/monitoring"
	"auditrisk/predict"
	"auditrisk/predlog"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// 2. Load model; a missing artifact leaves the service up but unable to predict
	model := predict.LoadModel(cfg.Model.Type, cfg.Model.Path)
	if model.Available() {
		logger.Info("model loaded", zap.String("type", cfg.Model.Type), zap.String("path", cfg.Model.Path))
	} else {
		logger.Error("model not loaded", zap.Error(model.Err()))
	}
	if cfg.Model.CacheSize > 0 {
		if model, err = model.WithCache(cfg.Model.CacheSize); err != nil {
			return fmt.Errorf("model cache: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Model.Watch {
		go func() {
			if err := predict.WatchArtifact(ctx, cfg.Model.Path, logger.Named("model")); err != nil {
				logger.Warn("artifact watch disabled", zap.Error(err))
			}
		}()
	}

	// 3. Open prediction log
	store, err := predlog.Open(cfg.LogStore())
	if err != nil {
		return fmt.Errorf("open prediction log: %w", err)
	}
	defer store.Close()

	monitoring.Register()
	feed := monitoring.NewFeedHub(logger.Named("feed"))
	go feed.Run()
	defer feed.Stop()

	predictor := predict.NewHandler(model, store,
		predict.WithLogger(logger.Named("predict")),
		predict.WithPublisher(feed))

	// 4. Start HTTP server
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, qhttp.NewHandlers(qhttp.Deps{
		Predictor:   predictor,
		Store:       store,
		Feed:        feed,
		DatasetPath: cfg.Dataset.Path,
		ReportPath:  cfg.ReportPath(),
		Logger:      logger.Named("http"),
	}), logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
	return nil
}
