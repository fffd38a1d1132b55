package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", `addr: ":9999"
log_level: debug
default_providers: [groq, local]
runtime_credential_envs: [LOCAL_API_KEY]
dispatch:
  timeout_ms: 5000
  retry_attempts: 2
freshness:
  battery_ms: 1000
providers:
  - name: groq
    type: openai
    endpoint: https://api.groq.com/openai/v1
    model: llama3-8b-8192
    api_key_env: GROQ_API_KEY
  - name: local
    type: openai
    endpoint: http://127.0.0.1:1234/v1
    skip_probe: true
  - name: phone
    type: file
    path: /tmp/phone.json
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.LogLevel != "debug" || cfg.Dispatch.TimeoutMs != 5000 || cfg.Dispatch.RetryAttempts != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.Providers) != 3 || cfg.Providers[0].APIKeyEnv != "GROQ_API_KEY" || !cfg.Providers[1].SkipProbe {
		t.Fatalf("unexpected providers: %+v", cfg.Providers)
	}
	if len(cfg.RuntimeCredentialEnvs) != 1 || cfg.RuntimeCredentialEnvs[0] != "LOCAL_API_KEY" {
		t.Fatalf("runtime credential envs: %v", cfg.RuntimeCredentialEnvs)
	}
	cfg.ApplyDefaults()
	if cfg.Freshness.BatteryMs != 1000 || cfg.Freshness.InsightsMs != DefaultInsightsMs {
		t.Fatalf("freshness defaults: %+v", cfg.Freshness)
	}
	if cfg.Providers[0].Kind != "ai_provider" || cfg.Providers[2].Kind != "data_source" {
		t.Fatalf("kind defaults: %+v", cfg.Providers)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","log_format":"json","max_body_bytes":2048,"cors":{"enabled":true,"allowed_origins":["*"]}}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.LogFormat != "json" || cfg.MaxBodyBytes != 2048 || !cfg.CORS.Enabled || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\ncollect_timeout_ms=1500\n\n[dispatch]\nbackoff_base_ms=10\n\n[[providers]]\nname=\"host\"\ntype=\"host\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.CollectTimeoutMs != 1500 || cfg.Dispatch.BackoffBaseMs != 10 || len(cfg.Providers) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidContent(t *testing.T) {
	d := t.TempDir()
	cases := map[string]string{
		"bad.yaml": "addr: :8080\n: broken\n",
		"bad.json": `{ "addr": ":8080", "providers": }`,
		"bad.toml": "addr=:8080\nproviders\n",
	}
	for name, body := range cases {
		p := writeTempFile(t, d, name, body)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected unmarshal error", name)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Addr != DefaultAddr || cfg.LogLevel != "info" || cfg.LogFormat != "console" {
		t.Fatalf("unexpected: %+v", cfg)
	}
	if Ms(cfg.Dispatch.TimeoutMs) != 30*time.Second || cfg.Dispatch.RetryAttempts != 1 {
		t.Fatalf("dispatch defaults: %+v", cfg.Dispatch)
	}
	if Ms(cfg.Freshness.BatteryMs) != 15*time.Second || Ms(cfg.Freshness.PerformanceMs) != 30*time.Second {
		t.Fatalf("freshness defaults: %+v", cfg.Freshness)
	}
	if cfg.MaxBodyBytes != DefaultMaxBodyBytes {
		t.Fatalf("max body: %d", cfg.MaxBodyBytes)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"duplicate", Config{Providers: []ProviderConfig{{Name: "a", Type: "host"}, {Name: "a", Type: "host"}}}, "duplicate"},
		{"missing name", Config{Providers: []ProviderConfig{{Type: "host"}}}, "name is required"},
		{"unknown type", Config{Providers: []ProviderConfig{{Name: "a", Type: "grpc"}}}, "unknown type"},
		{"unknown kind", Config{Providers: []ProviderConfig{{Name: "a", Kind: "robot", Type: "host"}}}, "unknown kind"},
		{"openai endpoint", Config{Providers: []ProviderConfig{{Name: "a", Type: "openai"}}}, "endpoint"},
		{"file path", Config{Providers: []ProviderConfig{{Name: "a", Type: "file"}}}, "path"},
		{"default missing", Config{DefaultProviders: []string{"ghost"}}, "ghost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.ApplyDefaults()
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}
