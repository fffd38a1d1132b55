package types

import "time"

// QueryRequest is the payload for POST /query.
type QueryRequest struct {
	// Free-text question about the device.
	// example: How much battery do I have?
	Prompt string `json:"prompt" example:"How much battery do I have?"`
	// Ordered provider names to try. Empty uses the configured defaults.
	// example: ["openai","ollama"]
	PreferredProviders []string `json:"preferred_providers,omitempty" example:"[\"openai\",\"ollama\"]"`
	// Freshness window for the cached snapshot in milliseconds. 0 uses the per-operation default.
	// example: 15000
	FreshnessMs int64 `json:"freshness_ms,omitempty" example:"15000"`
	// Data source to read the snapshot from. Empty uses the primary collector.
	// example: host
	Source string `json:"source,omitempty" example:"host"`
	// Force a fresh collection regardless of cache state.
	// example: false
	Refresh bool `json:"refresh,omitempty" example:"false"`
}

// RegisterProviderRequest is the payload for POST /providers.
type RegisterProviderRequest struct {
	// Unique provider name.
	// example: groq
	Name string `json:"name" example:"groq"`
	// Provider kind: ai_provider or data_source.
	// example: ai_provider
	Kind string `json:"kind" example:"ai_provider"`
	// Backend implementation: openai, llama, host, file.
	// example: openai
	Type string `json:"type" example:"openai"`
	// Connection target (base URL, model path or snapshot file).
	// example: https://api.groq.com/openai/v1
	Endpoint string `json:"endpoint,omitempty" example:"https://api.groq.com/openai/v1"`
	// Model identifier passed to the backend.
	// example: llama-3.3-70b-versatile
	Model string `json:"model,omitempty" example:"llama-3.3-70b-versatile"`
	// Name of the environment variable holding the API key. It must be
	// listed in runtime_credential_envs.
	// example: GROQ_API_KEY
	APIKeyEnv string `json:"api_key_env,omitempty" example:"GROQ_API_KEY"`
	// Declared capabilities.
	// example: ["text-generation"]
	Capabilities []string `json:"capabilities,omitempty" example:"[\"text-generation\"]"`
	// Fail with 409 instead of replacing an existing provider of the same name.
	// example: false
	Strict bool `json:"strict,omitempty" example:"false"`
	// Skip the reachability probe on connect.
	SkipProbe bool `json:"skip_probe,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// AttemptLog records one backend call made while answering a request.
type AttemptLog struct {
	// Provider that was called.
	// example: openai
	Provider string `json:"provider" example:"openai"`
	// 1-based try number against this provider.
	// example: 1
	Try int `json:"try" example:"1"`
	// success, Timeout, AuthError, RateLimited, TransportError, InvalidResponse or Canceled.
	// example: Timeout
	Outcome string `json:"outcome" example:"Timeout"`
	// Error text for failed attempts.
	Error string `json:"error,omitempty"`
	// Wall time of the call in milliseconds.
	// example: 812
	LatencyMs int64 `json:"latency_ms" example:"812"`
}

// InsightResult is returned by every insight operation.
type InsightResult struct {
	// Whether a usable answer was produced (provider-backed or fallback).
	// example: true
	Success bool `json:"success" example:"true"`
	// Operation kind: insights, battery, performance or query.
	// example: battery
	Kind string `json:"kind" example:"battery"`
	// Provider that produced the content; null when fallback advice was used.
	// example: openai
	ProviderUsed *string `json:"provider_used" example:"openai"`
	// Advice text.
	Content string `json:"content,omitempty"`
	// Snapshot fields that were sent to the provider.
	SnapshotExcerpt map[string]any `json:"snapshot_excerpt,omitempty"`
	// Data source the snapshot came from.
	// example: default
	Source string `json:"source,omitempty" example:"default"`
	// When the snapshot was collected.
	CollectedAt time.Time `json:"collected_at,omitempty"`
	// True when a refresh failed and an older snapshot was used.
	Stale bool `json:"stale,omitempty"`
	// True when all providers failed and static advice was returned.
	Fallback bool `json:"fallback,omitempty"`
	// Error name for unsuccessful results (e.g., EmptyPromptError).
	Error string `json:"error,omitempty"`
	// Ordered log of backend calls.
	Attempts []AttemptLog `json:"attempts,omitempty"`
	// Result time.
	Timestamp time.Time `json:"timestamp"`
}

// CacheEntryStatus summarizes one cached snapshot for /status.
type CacheEntryStatus struct {
	// Cache key (data source name or "default").
	// example: default
	Source string `json:"source" example:"default"`
	// Age of the cached snapshot in milliseconds.
	// example: 4200
	AgeMs int64 `json:"age_ms" example:"4200"`
	// True when the entry is being served after a failed refresh.
	Stale bool `json:"stale,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Registered providers in registration order.
	Providers []ProviderStatus `json:"providers"`
	// Cached snapshots.
	Cache []CacheEntryStatus `json:"cache"`
	// Overall state (initializing, ready, closed).
	// example: ready
	State string `json:"state" example:"ready"`
	// Uptime in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
