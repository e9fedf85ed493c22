package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host              string
	Port              string
	ModelPath         string
	OnnxLibraryPath   string
	SessionPoolSize   int
	IntraOpThreads    int
	FallbackInputSize int
	MaxUploadBytes    int64
	AcquireTimeout    time.Duration
	ShutdownTimeout   time.Duration
	PreloadModel      bool
	Debug             bool
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "5001"),
		ModelPath:       getEnv("MODEL_PATH", "/models/model_inception_v3.onnx"),
		OnnxLibraryPath: getEnv("ONNXRUNTIME_LIB", DefaultLibraryName()),
	}

	var errs []error
	cfg.SessionPoolSize = getInt("SESSION_POOL_SIZE", 1, &errs)
	cfg.IntraOpThreads = getInt("INTRA_OP_THREADS", 0, &errs)
	cfg.FallbackInputSize = getInt("FALLBACK_INPUT_SIZE", 448, &errs)
	cfg.MaxUploadBytes = int64(getInt("MAX_UPLOAD_BYTES", 10<<20, &errs))
	cfg.AcquireTimeout = getDuration("ACQUIRE_TIMEOUT", 30*time.Second, &errs)
	cfg.ShutdownTimeout = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second, &errs)
	cfg.PreloadModel = getBool("PRELOAD_MODEL", false, &errs)
	cfg.Debug = getBool("DEBUG", false, &errs)

	if cfg.SessionPoolSize < 1 {
		errs = append(errs, fmt.Errorf("SESSION_POOL_SIZE must be at least 1, got %d", cfg.SessionPoolSize))
	}
	if cfg.FallbackInputSize < 1 {
		errs = append(errs, fmt.Errorf("FALLBACK_INPUT_SIZE must be positive, got %d", cfg.FallbackInputSize))
	}
	if cfg.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultLibraryName is the ONNX Runtime shared library for this OS,
// resolved through the platform's library search path.
func DefaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getBool(key string, fallback bool, errs *[]error) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}
