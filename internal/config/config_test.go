package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Queue.MaxConcurrent != 1 {
		t.Errorf("Queue.MaxConcurrent = %d, want 1", cfg.Queue.MaxConcurrent)
	}
	if cfg.Runner.ToolTimeout != 2*time.Minute {
		t.Errorf("Runner.ToolTimeout = %s, want 2m", cfg.Runner.ToolTimeout)
	}
	if cfg.Cache.RateLimitedTTL <= cfg.Cache.StandardTTL {
		t.Errorf("RateLimitedTTL (%s) should exceed StandardTTL (%s)",
			cfg.Cache.RateLimitedTTL, cfg.Cache.StandardTTL)
	}
	if cfg.Decision.Model == "" {
		t.Error("Decision.Model is empty")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"server port 0", func(c *Config) { c.Server.Port = 0 }, true},
		{"server port 99999", func(c *Config) { c.Server.Port = 99999 }, true},
		{"max_concurrent 0", func(c *Config) { c.Queue.MaxConcurrent = 0 }, true},
		{"max_queued 0", func(c *Config) { c.Queue.MaxQueued = 0 }, true},
		{"tool_timeout > max_timeout", func(c *Config) {
			c.Runner.ToolTimeout = 20 * time.Minute
			c.Runner.MaxTimeout = 10 * time.Minute
		}, true},
		{"zero standard ttl", func(c *Config) { c.Cache.StandardTTL = 0 }, true},
		{"zero sweep interval", func(c *Config) { c.Cache.SweepInterval = 0 }, true},
		{"empty decision model", func(c *Config) { c.Decision.Model = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
queue:
  max_concurrent: 5
cache:
  rate_limited_ttl: 10m
`
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Queue.MaxConcurrent != 5 {
		t.Errorf("Queue.MaxConcurrent = %d, want 5", cfg.Queue.MaxConcurrent)
	}
	if cfg.Cache.RateLimitedTTL != 10*time.Minute {
		t.Errorf("Cache.RateLimitedTTL = %s, want 10m", cfg.Cache.RateLimitedTTL)
	}
	// Unset fields keep defaults.
	if cfg.Runner.Backend != "auto" {
		t.Errorf("Runner.Backend = %q, want auto", cfg.Runner.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() error = nil, want read error")
	}
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want validation error")
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Address(); got != "0.0.0.0:8080" {
		t.Errorf("Address() = %q, want 0.0.0.0:8080", got)
	}
}
