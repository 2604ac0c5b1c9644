// Package config loads service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Host string
	Port string

	ModelPath   string
	OnnxLibPath string

	ConfidenceThreshold float32
	IoUThreshold        float32
	InputSize           int
	PoolSize            int

	MaxImageSize int64

	// CachePredictions is parsed for compatibility with existing
	// deployments but no prediction cache exists; results live only for
	// the duration of their request.
	CachePredictions bool

	Debug bool
}

func Load() *Config {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	return &Config{
		Host:                getEnv("HOST", "0.0.0.0"),
		Port:                getEnv("PORT", "5000"),
		ModelPath:           getEnv("MODEL_PATH", "model/yolov9.onnx"),
		OnnxLibPath:         getEnv("ONNX_LIB_PATH", ""),
		ConfidenceThreshold: float32(getEnvFloat("CONFIDENCE_THRESHOLD", 0.5)),
		IoUThreshold:        float32(getEnvFloat("IOU_THRESHOLD", 0.45)),
		InputSize:           getEnvInt("INPUT_SIZE", 640),
		PoolSize:            getEnvInt("POOL_SIZE", 4),
		MaxImageSize:        int64(getEnvInt("MAX_IMAGE_SIZE", 10*1024*1024)),
		CachePredictions:    getEnvBool("CACHE_PREDICTIONS", false),
		Debug:               getEnvBool("DEBUG", false),
	}
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
