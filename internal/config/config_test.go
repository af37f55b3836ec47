package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valmeida/chatvault/internal/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v, want nil for missing file", err)
	}

	if cfg.Server.ListenAddr != ":3001" {
		t.Errorf("listen addr = %q, want %q", cfg.Server.ListenAddr, ":3001")
	}
	if cfg.Server.RequestTimeout != time.Minute {
		t.Errorf("request timeout = %v, want 1m", cfg.Server.RequestTimeout)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		t.Error("no default CORS origins")
	}
	if cfg.Database.Path != "chatvault.db" {
		t.Errorf("database path = %q, want chatvault.db", cfg.Database.Path)
	}
	if cfg.Classify.URL != "http://localhost:8000/predict" {
		t.Errorf("classifier url = %q, want default predict endpoint", cfg.Classify.URL)
	}
	if cfg.Gemini.ModelName == "" {
		t.Error("gemini model name default missing")
	}

	task, ok := cfg.Scheduler.Tasks["sql_maintenance"]
	if !ok {
		t.Fatal("sql_maintenance task default missing")
	}
	if !task.Enabled || task.Schedule == "" {
		t.Errorf("sql_maintenance task = %+v, want enabled with a schedule", task)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  listen_addr: ":9000"
logger:
  level: debug
  json: true
database:
  path: /tmp/archive.db
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen addr = %q, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Logger.Level != "debug" || !cfg.Logger.JSON {
		t.Errorf("logger config = %+v, want debug json", cfg.Logger)
	}
	if cfg.Database.Path != "/tmp/archive.db" {
		t.Errorf("database path = %q, want /tmp/archive.db", cfg.Database.Path)
	}
	if cfg.Classify.URL != "http://localhost:8000/predict" {
		t.Errorf("classifier url = %q, defaults should fill unset keys", cfg.Classify.URL)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
logger:
  level: loud
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := config.LoadConfig(path); err == nil {
		t.Error("LoadConfig() error = nil, want validation failure for bad log level")
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CHATVAULT_SERVER_LISTEN_ADDR", ":4242")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":4242" {
		t.Errorf("listen addr = %q, want env override :4242", cfg.Server.ListenAddr)
	}
}
