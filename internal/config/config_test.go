package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST", "PORT", "MODEL_PATH", "ONNX_LIB_PATH",
		"CONFIDENCE_THRESHOLD", "IOU_THRESHOLD", "INPUT_SIZE",
		"POOL_SIZE", "MAX_IMAGE_SIZE", "CACHE_PREDICTIONS", "DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "model/yolov9.onnx", cfg.ModelPath)
	assert.Equal(t, float32(0.5), cfg.ConfidenceThreshold)
	assert.Equal(t, float32(0.45), cfg.IoUThreshold)
	assert.Equal(t, 640, cfg.InputSize)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxImageSize)
	assert.False(t, cfg.CachePredictions)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("MODEL_PATH", "/opt/models/tumor.onnx")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.7")
	t.Setenv("IOU_THRESHOLD", "0.3")
	t.Setenv("INPUT_SIZE", "416")
	t.Setenv("MAX_IMAGE_SIZE", "1048576")
	t.Setenv("DEBUG", "true")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/opt/models/tumor.onnx", cfg.ModelPath)
	assert.Equal(t, float32(0.7), cfg.ConfidenceThreshold)
	assert.Equal(t, float32(0.3), cfg.IoUThreshold)
	assert.Equal(t, 416, cfg.InputSize)
	assert.Equal(t, int64(1048576), cfg.MaxImageSize)
	assert.True(t, cfg.Debug)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIDENCE_THRESHOLD", "not-a-number")
	t.Setenv("INPUT_SIZE", "tall")
	t.Setenv("DEBUG", "maybe")

	cfg := Load()

	assert.Equal(t, float32(0.5), cfg.ConfidenceThreshold)
	assert.Equal(t, 640, cfg.InputSize)
	assert.False(t, cfg.Debug)
}
