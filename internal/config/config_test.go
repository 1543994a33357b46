package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPinsSpecTimeouts(t *testing.T) {
	cfg := Default()

	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected default store backend memory, got %q", cfg.Store.Backend)
	}
	if cfg.Timeout.Connect != 30*time.Second {
		t.Fatalf("expected 30s connect timeout, got %s", cfg.Timeout.Connect)
	}
	if cfg.Timeout.Receive != 10*time.Minute {
		t.Fatalf("expected 10m receive timeout, got %s", cfg.Timeout.Receive)
	}
	if cfg.SSE.SubscriberBuffer != 256 {
		t.Fatalf("expected default subscriber buffer 256, got %d", cfg.SSE.SubscriberBuffer)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "store:\n  backend: sqlite\n  dsn: ./agentcore.db\nagents:\n  dir: ./custom/agents\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.DSN != "./agentcore.db" {
		t.Fatalf("expected overridden store config, got %+v", cfg.Store)
	}
	if cfg.Agents.Dir != "./custom/agents" {
		t.Fatalf("expected overridden agents dir, got %q", cfg.Agents.Dir)
	}
	// Fields absent from the YAML keep their Default() value.
	if cfg.Skills.Dir != "./data/skills" {
		t.Fatalf("expected default skills dir to survive merge, got %q", cfg.Skills.Dir)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error loading nonexistent config file")
	}
}
