package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Queue    QueueConfig    `yaml:"queue"`
	Runner   RunnerConfig   `yaml:"runner"`
	Cache    CacheConfig    `yaml:"cache"`
	Decision DecisionConfig `yaml:"decision"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type QueueConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"` // scheduler ceiling at startup
	MaxQueued     int `yaml:"max_queued"`     // enqueue rejected beyond this depth
}

type RunnerConfig struct {
	Backend          string        `yaml:"backend"` // "auto" (default), "containerd", or "exec"
	ContainerdSocket string        `yaml:"containerd_socket"`
	Namespace        string        `yaml:"namespace"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	MaxTimeout       time.Duration `yaml:"max_timeout"`
	PrefetchImages   bool          `yaml:"prefetch_images"`
}

type CacheConfig struct {
	StandardTTL    time.Duration `yaml:"standard_ttl"`     // real results, free tier
	ExtendedTTL    time.Duration `yaml:"extended_ttl"`     // paid tier
	RateLimitedTTL time.Duration `yaml:"rate_limited_ttl"` // real calls to quota-bound APIs
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type DecisionConfig struct {
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Sample   float64 `yaml:"sample_rate"`
}

type SecurityConfig struct {
	APIKeyHeader         string   `yaml:"api_key_header"`
	AllowedKeys          []string `yaml:"allowed_keys"`
	AllowUnauthenticated bool     `yaml:"allow_unauthenticated"`
	RateLimitRPS         float64  `yaml:"rate_limit_rps"`
	RateLimitBurst       int      `yaml:"rate_limit_burst"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Queue: QueueConfig{
			MaxConcurrent: 1,
			MaxQueued:     1000,
		},
		Runner: RunnerConfig{
			Backend:          "auto",
			ContainerdSocket: "/run/containerd/containerd.sock",
			Namespace:        "recon",
			ToolTimeout:      2 * time.Minute,
			MaxTimeout:       10 * time.Minute,
			PrefetchImages:   true,
		},
		Cache: CacheConfig{
			StandardTTL:    1 * time.Minute,
			ExtendedTTL:    5 * time.Minute,
			RateLimitedTTL: 5 * time.Minute,
			SweepInterval:  30 * time.Second,
		},
		Decision: DecisionConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
			Sample:  0.1,
		},
		Security: SecurityConfig{
			APIKeyHeader:   "X-API-Key",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("queue.max_concurrent must be >= 1")
	}
	if c.Queue.MaxQueued < 1 {
		return fmt.Errorf("queue.max_queued must be >= 1")
	}
	if c.Runner.ToolTimeout > c.Runner.MaxTimeout {
		return fmt.Errorf("runner.tool_timeout (%s) must be <= max_timeout (%s)",
			c.Runner.ToolTimeout, c.Runner.MaxTimeout)
	}
	if c.Cache.StandardTTL <= 0 || c.Cache.RateLimitedTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("cache.sweep_interval must be positive")
	}
	if c.Decision.Model == "" {
		return fmt.Errorf("decision.model must be set")
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable — connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
