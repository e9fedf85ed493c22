package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Tutortoise/defect-classification-service/classification"
	"github.com/Tutortoise/defect-classification-service/config"
	"github.com/Tutortoise/defect-classification-service/logging"
	"github.com/Tutortoise/defect-classification-service/metrics"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}

	logger, err := logging.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	defer func() {
		if err := classification.DestroyEnvironment(); err != nil {
			logger.Warn("failed to destroy ONNX environment", zap.Error(err))
		}
	}()

	opener := classification.NewONNXOpener(classification.ONNXOptions{
		LibraryPath:    cfg.OnnxLibraryPath,
		PoolSize:       cfg.SessionPoolSize,
		AcquireTimeout: cfg.AcquireTimeout,
		Fallback:       classification.Size{Width: cfg.FallbackInputSize, Height: cfg.FallbackInputSize},
		IntraOpThreads: cfg.IntraOpThreads,
	}, logger)
	loader := classification.NewLoader(cfg.ModelPath, opener, logger)
	defer loader.Close()
	classifier := classification.NewClassifier(loader, logger)

	if len(args) > 0 && args[0] == "predict" {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: defect-classification-service predict <image>")
			return 2
		}
		if err := predictOnce(context.Background(), classifier, args[1]); err != nil {
			logger.Error("prediction failed", zap.Error(err))
			return 1
		}
		return 0
	}

	logger.Info("host capabilities", hostCapabilities()...)

	if cfg.PreloadModel {
		if _, err := loader.Ensure(context.Background()); err != nil {
			logger.Warn("model preload failed, will retry on first request",
				zap.String("model_path", loader.Path()), zap.Error(err))
		}
	}

	state := &AppState{
		Classifier:     classifier,
		Metrics:        metrics.New(poolSource(loader)),
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Addr(),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	logger.Info("starting server",
		zap.String("addr", srv.Addr),
		zap.String("model_path", cfg.ModelPath),
		zap.Int("session_pool_size", cfg.SessionPoolSize))
	if err := serveHTTPServer(srv, cfg.ShutdownTimeout, logger); err != nil {
		logger.Error("server failed", zap.Error(err))
		return 1
	}
	return 0
}

func poolSource(loader *classification.Loader) metrics.PoolSource {
	return func() (classification.PoolStats, bool) {
		engine := loader.Engine()
		if engine == nil {
			return classification.PoolStats{}, false
		}
		return engine.Stats(), true
	}
}

func predictOnce(ctx context.Context, classifier *classification.Classifier, imgPath string) error {
	data, err := os.ReadFile(imgPath)
	if err != nil {
		return err
	}

	prediction, err := classifier.Classify(ctx, data, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(prediction)
}
