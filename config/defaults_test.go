package config

import (
	"testing"
	"time"
)

func TestDefaultConfig_Complete(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}

	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("unexpected shutdown timeout: %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.LLM.MaxRetries != 3 {
		t.Errorf("unexpected llm retries: %d", cfg.LLM.MaxRetries)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
	if cfg.Checkpoint.TTL != 24*time.Hour {
		t.Errorf("unexpected checkpoint ttl: %v", cfg.Checkpoint.TTL)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected log defaults: %s / %s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestDefaultConfig_PipelineEmbedded(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pipeline.Gate.Thresholds == nil {
		t.Fatal("pipeline gate thresholds must be populated")
	}
	if len(cfg.Pipeline.WebSearch.Presets) != 3 {
		t.Errorf("expected 3 web search presets, got %d", len(cfg.Pipeline.WebSearch.Presets))
	}
}
