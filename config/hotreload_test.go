// 配置热重载测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReloader_RequiresConfigPath(t *testing.T) {
	if _, err := NewReloader(NewLoader(), DefaultConfig()); err == nil {
		t.Error("expected error without config path")
	}
	if _, err := NewReloader(nil, DefaultConfig()); err == nil {
		t.Error("expected error without loader")
	}
}

func TestReloader_ReloadAppliesNewConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader().WithConfigPath(path)
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r, err := NewReloader(loader, initial)
	if err != nil {
		t.Fatalf("failed to create reloader: %v", err)
	}

	var notified bool
	r.OnReload(func(oldConfig, newConfig *Config) {
		notified = true
		if oldConfig.Server.HTTPPort != 9000 || newConfig.Server.HTTPPort != 9001 {
			t.Errorf("unexpected ports in callback: old=%d new=%d",
				oldConfig.Server.HTTPPort, newConfig.Server.HTTPPort)
		}
	})

	if err := os.WriteFile(path, []byte("server:\n  http_port: 9001\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if !notified {
		t.Error("reload callback not invoked")
	}
	if r.Current().Server.HTTPPort != 9001 {
		t.Errorf("expected current port 9001, got %d", r.Current().Server.HTTPPort)
	}
}

func TestReloader_InvalidConfigKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader().WithConfigPath(path)
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}

	r, err := NewReloader(loader, initial)
	if err != nil {
		t.Fatalf("failed to create reloader: %v", err)
	}

	// http_port 0 未通过验证，当前配置必须保持不变
	if err := os.WriteFile(path, []byte("server:\n  http_port: 0\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	if err := r.Reload(); err == nil {
		t.Error("expected validation error on reload")
	}
	if r.Current().Server.HTTPPort != 9000 {
		t.Errorf("previous config must survive failed reload, got %d", r.Current().Server.HTTPPort)
	}
}
