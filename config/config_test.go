package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HOST", "PORT", "MODEL_PATH", "SESSION_POOL_SIZE", "FALLBACK_INPUT_SIZE", "PRELOAD_MODEL", "ACQUIRE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:5001" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if cfg.SessionPoolSize != 1 || cfg.FallbackInputSize != 448 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AcquireTimeout != 30*time.Second || cfg.PreloadModel {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.OnnxLibraryPath != DefaultLibraryName() {
		t.Fatalf("library = %q", cfg.OnnxLibraryPath)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("MODEL_PATH", "/tmp/model.onnx")
	t.Setenv("SESSION_POOL_SIZE", "3")
	t.Setenv("ACQUIRE_TIMEOUT", "2s")
	t.Setenv("PRELOAD_MODEL", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Port != "8081" || cfg.ModelPath != "/tmp/model.onnx" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.SessionPoolSize != 3 || cfg.AcquireTimeout != 2*time.Second || !cfg.PreloadModel {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("SESSION_POOL_SIZE", "many")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	t.Setenv("DEBUG", "maybe")
	t.Setenv("FALLBACK_INPUT_SIZE", "0")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"SESSION_POOL_SIZE", "SHUTDOWN_TIMEOUT", "DEBUG", "FALLBACK_INPUT_SIZE"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error should mention %s: %v", key, err)
		}
	}
}
