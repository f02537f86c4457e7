package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FileUsed != "" {
		t.Errorf("no file expected, got %q", cfg.FileUsed)
	}
	if cfg.Backend.Timeout != 10*time.Second {
		t.Errorf("backend.timeout: got %s", cfg.Backend.Timeout)
	}
	if cfg.Cache.Driver != DriverBadger || cfg.CategoryTTL != time.Hour || cfg.MinScore != 50 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Health.FailThreshold != 3 || cfg.API.Port != 8090 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := []byte(`
backend:
  url: https://api.civic.example.org
  timeout: 3s
cache:
  driver: memory
validation:
  min_score: 60
`)
	if err := os.WriteFile(filepath.Join(dir, "civicsync.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VALIDATION_MIN_SCORE", "70")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.URL != "https://api.civic.example.org" || cfg.Backend.Timeout != 3*time.Second {
		t.Errorf("file values not applied: %+v", cfg.Backend)
	}
	if cfg.Cache.Driver != DriverMemory {
		t.Errorf("cache.driver: got %q", cfg.Cache.Driver)
	}
	if cfg.MinScore != 70 {
		t.Errorf("env should override file: got %d", cfg.MinScore)
	}
}

func TestLoad_dotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "") // restored after the test
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level from .env: got %q", cfg.Log.Level)
	}
}

func TestLoad_invalid(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name, key, value string
	}{
		{"unknown driver", "CACHE_DRIVER", "redis"},
		{"score out of range", "VALIDATION_MIN_SCORE", "101"},
		{"zero timeout", "BACKEND_TIMEOUT", "0s"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(""); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_explicitFileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
