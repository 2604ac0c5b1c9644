package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/neuroscan/tumor-detection-service/internal/config"
	"github.com/neuroscan/tumor-detection-service/internal/detect"
	"github.com/neuroscan/tumor-detection-service/internal/pipeline"
	"github.com/neuroscan/tumor-detection-service/internal/preprocess"
	"github.com/neuroscan/tumor-detection-service/internal/server"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	pre := preprocess.New(preprocess.Config{
		TargetWidth:  cfg.InputSize,
		TargetHeight: cfg.InputSize,
		Mean:         preprocess.DefaultMean,
		Std:          preprocess.DefaultStd,
	})

	engine, pool := selectEngine(cfg, logger)
	if pool != nil {
		defer ort.DestroyEnvironment()
		defer pool.Destroy()
	}

	logger.Info("detection system initialized",
		"engine", engine.Name(),
		"model_path", cfg.ModelPath,
		"confidence_threshold", cfg.ConfidenceThreshold,
		"iou_threshold", cfg.IoUThreshold,
		"input_size", cfg.InputSize,
		"cache_predictions", cfg.CachePredictions)

	srv := server.New(cfg, pipeline.New(pre, engine, logger), pool, logger)
	httpSrv := &http.Server{
		Handler:      srv.Router(),
		Addr:         cfg.Addr(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// selectEngine picks the inference strategy once at startup: the ONNX
// model engine when the model loads, the simulator otherwise. The
// returned pool is nil for the simulator.
func selectEngine(cfg *config.Config, logger *slog.Logger) (pipeline.Engine, *detect.SessionPool) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		logger.Warn("model file not found, using simulated detections", "model_path", cfg.ModelPath)
		return newSimulator(), nil
	}

	if cfg.OnnxLibPath != "" {
		ort.SetSharedLibraryPath(cfg.OnnxLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		logger.Warn("onnx runtime unavailable, using simulated detections", "error", err)
		return newSimulator(), nil
	}

	modelCfg := detect.ModelConfig{
		ModelPath:           cfg.ModelPath,
		InputWidth:          cfg.InputSize,
		InputHeight:         cfg.InputSize,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		IoUThreshold:        cfg.IoUThreshold,
		PoolSize:            cfg.PoolSize,
	}

	pool, err := detect.NewSessionPool(modelCfg)
	if err != nil {
		logger.Warn("failed to load model, using simulated detections", "error", err)
		ort.DestroyEnvironment()
		return newSimulator(), nil
	}

	return detect.NewModelEngine(pool, modelCfg), pool
}

func newSimulator() *detect.Simulator {
	return detect.NewSimulator(rand.New(rand.NewSource(time.Now().UnixNano())))
}
