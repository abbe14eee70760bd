package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxquery/voxquery/internal/enrichment"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  port: 9999
openai:
  api_key: test-key
  model: gpt-4o
enrichment:
  row_policy: retry
  retry_attempts: 3
  retry_backoff_seconds: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
	if cfg.OpenAI.Model != "gpt-4o" || cfg.OpenAI.ClassifierModel != "gpt-4o" {
		t.Fatalf("model defaults not applied: %+v", cfg.OpenAI)
	}

	rc := cfg.Enrichment.RunnerConfig()
	if rc.RowPolicy != enrichment.PolicyRetry || rc.RetryAttempts != 3 || rc.RetryBackoff != 2*time.Second {
		t.Fatalf("unexpected runner config %+v", rc)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("server defaults missing: %+v", cfg.Server)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("logging defaults missing: %+v", cfg.Logging)
	}
	if cfg.Uploads.Dir != "uploads" || cfg.Uploads.JanitorSchedule != "@hourly" {
		t.Fatalf("uploads defaults missing: %+v", cfg.Uploads)
	}
	if cfg.Enrichment.RowPolicy != "abort" {
		t.Fatalf("enrichment default missing: %+v", cfg.Enrichment)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("VOXQUERY_TEST_KEY", "expanded-key")
	path := writeConfig(t, "config.yaml", `
openai:
  api_key: ${VOXQUERY_TEST_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAI.APIKey != "expanded-key" {
		t.Fatalf("env expansion failed, got %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "config.json5", `{
  // comments are allowed
  server: { port: 7070 },
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("unexpected port %d", cfg.Server.Port)
	}
}

func TestLoadInclude(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(base, []byte("server:\n  port: 6060\nlogging:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	main := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(main, []byte("$include: base.yaml\nlogging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatalf("write main: %v", err)
	}

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// Includes merge first; the including file wins.
	if cfg.Server.Port != 6060 || cfg.Logging.Level != "warn" {
		t.Fatalf("unexpected merge result: port=%d level=%s", cfg.Server.Port, cfg.Logging.Level)
	}
}

func TestLoadInvalidRowPolicy(t *testing.T) {
	path := writeConfig(t, "config.yaml", "enrichment:\n  row_policy: explode\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid row policy")
	}
}
