package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"insightd/internal/common/fsutil"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr             string           `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel         string           `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat        string           `json:"log_format" yaml:"log_format" toml:"log_format"`
	DefaultProviders []string         `json:"default_providers" yaml:"default_providers" toml:"default_providers"`
	Dispatch         DispatchConfig   `json:"dispatch" yaml:"dispatch" toml:"dispatch"`
	Freshness        FreshnessConfig  `json:"freshness" yaml:"freshness" toml:"freshness"`
	CollectTimeoutMs int              `json:"collect_timeout_ms" yaml:"collect_timeout_ms" toml:"collect_timeout_ms"`
	MaxBodyBytes     int64            `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORS             CORSConfig       `json:"cors" yaml:"cors" toml:"cors"`
	Providers        []ProviderConfig `json:"providers" yaml:"providers" toml:"providers"`

	// RuntimeCredentialEnvs lists the api_key_env names that providers
	// registered over the HTTP API may reference.
	RuntimeCredentialEnvs []string `json:"runtime_credential_envs" yaml:"runtime_credential_envs" toml:"runtime_credential_envs"`
}

// DispatchConfig tunes provider failover.
type DispatchConfig struct {
	TimeoutMs     int `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	RetryAttempts int `json:"retry_attempts" yaml:"retry_attempts" toml:"retry_attempts"`
	BackoffBaseMs int `json:"backoff_base_ms" yaml:"backoff_base_ms" toml:"backoff_base_ms"`
	BackoffMaxMs  int `json:"backoff_max_ms" yaml:"backoff_max_ms" toml:"backoff_max_ms"`
}

// FreshnessConfig is the snapshot freshness window per operation.
type FreshnessConfig struct {
	InsightsMs    int `json:"insights_ms" yaml:"insights_ms" toml:"insights_ms"`
	BatteryMs     int `json:"battery_ms" yaml:"battery_ms" toml:"battery_ms"`
	PerformanceMs int `json:"performance_ms" yaml:"performance_ms" toml:"performance_ms"`
	QueryMs       int `json:"query_ms" yaml:"query_ms" toml:"query_ms"`
}

// CORSConfig enables cross-origin access to the HTTP API.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// ProviderConfig declares one backend to register at startup.
type ProviderConfig struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	// Kind is ai_provider or data_source.
	Kind string `json:"kind" yaml:"kind" toml:"kind"`
	// Type selects the implementation: openai, llama, host, file.
	Type     string `json:"type" yaml:"type" toml:"type"`
	Endpoint string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Model    string `json:"model" yaml:"model" toml:"model"`
	// APIKeyEnv names the environment variable holding the credential.
	APIKeyEnv    string   `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
	Capabilities []string `json:"capabilities" yaml:"capabilities" toml:"capabilities"`
	TimeoutMs    int      `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	SkipProbe    bool     `json:"skip_probe" yaml:"skip_probe" toml:"skip_probe"`
	// Path is the model file (llama) or snapshot file (file).
	Path        string  `json:"path" yaml:"path" toml:"path"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
}

// Defaults used by ApplyDefaults.
const (
	DefaultAddr             = ":8080"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultTimeoutMs        = 30000
	DefaultRetryAttempts    = 1
	DefaultBackoffBaseMs    = 250
	DefaultBackoffMaxMs     = 4000
	DefaultInsightsMs       = 60000
	DefaultBatteryMs        = 15000
	DefaultPerformanceMs    = 30000
	DefaultQueryMs          = 30000
	DefaultCollectTimeoutMs = 20000
	DefaultMaxBodyBytes     = 1 << 20
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	setInt(&c.Dispatch.TimeoutMs, DefaultTimeoutMs)
	setInt(&c.Dispatch.RetryAttempts, DefaultRetryAttempts)
	setInt(&c.Dispatch.BackoffBaseMs, DefaultBackoffBaseMs)
	setInt(&c.Dispatch.BackoffMaxMs, DefaultBackoffMaxMs)
	setInt(&c.Freshness.InsightsMs, DefaultInsightsMs)
	setInt(&c.Freshness.BatteryMs, DefaultBatteryMs)
	setInt(&c.Freshness.PerformanceMs, DefaultPerformanceMs)
	setInt(&c.Freshness.QueryMs, DefaultQueryMs)
	setInt(&c.CollectTimeoutMs, DefaultCollectTimeoutMs)
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		if p.Kind == "" {
			switch p.Type {
			case "host", "file":
				p.Kind = "data_source"
			default:
				p.Kind = "ai_provider"
			}
		}
	}
}

func setInt(p *int, def int) {
	if *p <= 0 {
		*p = def
	}
}

// Validate rejects configurations that cannot be started.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Kind {
		case "ai_provider", "data_source":
		default:
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		switch p.Type {
		case "openai":
			if p.Endpoint == "" {
				return fmt.Errorf("provider %q: endpoint is required", p.Name)
			}
		case "llama", "file":
			if p.Path == "" {
				return fmt.Errorf("provider %q: path is required", p.Name)
			}
		case "host":
		default:
			return fmt.Errorf("provider %q: unknown type %q", p.Name, p.Type)
		}
	}
	for _, name := range c.DefaultProviders {
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("default provider %q is not configured", name)
		}
	}
	return nil
}

// Ms converts a millisecond setting to a Duration.
func Ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
