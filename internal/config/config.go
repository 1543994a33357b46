// Package config loads the small YAML configuration this core needs:
// store backend selection, agent/skill directories, the default model,
// and the timeouts and SSE buffer size the spec pins to fixed values.
// The commands in cmd/agentcore read Store, Agents, Skills and
// Timeout.LockAcquire; the other fields hold the defaults and are not
// passed to the components that use those values.
// CLI flag parsing and env-var layering are out of scope — see spec §1.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for agentcore.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Agents  DirConfig     `yaml:"agents"`
	Skills  DirConfig     `yaml:"skills"`
	LLM     LLMConfig     `yaml:"llm"`
	Timeout TimeoutConfig `yaml:"timeout"`
	SSE     SSEConfig     `yaml:"sse"`
}

// StoreConfig selects and configures the session store backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite". Defaults to "memory".
	Backend string `yaml:"backend"`

	// DSN is the sqlite data source name, e.g. "./agentcore.db". Ignored
	// for the memory backend.
	DSN string `yaml:"dsn"`
}

// DirConfig is a hot-reloaded file-backed repository's root directory.
type DirConfig struct {
	Dir string `yaml:"dir"`
}

// LLMConfig holds the default model name. It has no tool-server registry
// settings, and nothing outside this package reads DefaultModel.
type LLMConfig struct {
	DefaultModel string `yaml:"default_model"`
}

// TimeoutConfig holds the fixed durations named in spec §5.
type TimeoutConfig struct {
	Connect         time.Duration `yaml:"connect"`
	Receive         time.Duration `yaml:"receive"`
	KeepaliveIdle   time.Duration `yaml:"keepalive_idle"`
	LockAcquire     time.Duration `yaml:"lock_acquire"`
}

// SSEConfig configures the SSE broadcast hub.
type SSEConfig struct {
	// SubscriberBuffer records the channel capacity per subscriber before
	// a publish is considered blocked and the subscriber dropped. The hub
	// does not read it; ssehub uses its own fixed buffer of 256.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// Default returns the configuration used when no YAML file is loaded,
// matching the fixed values the spec pins (§4.3, §5).
func Default() *Config {
	return &Config{
		Store:  StoreConfig{Backend: "memory"},
		Agents: DirConfig{Dir: "./data/agents"},
		Skills: DirConfig{Dir: "./data/skills"},
		LLM:    LLMConfig{DefaultModel: "sonnet"},
		Timeout: TimeoutConfig{
			Connect:       30 * time.Second,
			Receive:       10 * time.Minute,
			KeepaliveIdle: 30 * time.Second,
			LockAcquire:   5 * time.Second,
		},
		SSE: SSEConfig{SubscriberBuffer: 256},
	}
}

// Load reads a single YAML file at path and merges it over Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
