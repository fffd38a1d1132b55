package orchestrator

import (
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"insightd/internal/config"
	"insightd/internal/provider"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultInsightsFreshness    = 60 * time.Second
	defaultBatteryFreshness     = 15 * time.Second
	defaultPerformanceFreshness = 30 * time.Second
	defaultQueryFreshness       = 30 * time.Second
)

// BuildFunc constructs a provider from its configuration. It is used for
// providers registered at runtime through the HTTP API.
type BuildFunc func(config.ProviderConfig) (provider.Descriptor, provider.Backend, error)

// Config encapsulates the tunables for Orchestrator construction.
type Config struct {
	// DefaultProviders is used when a request names no providers. Empty
	// means registry order.
	DefaultProviders []string
	// Freshness windows per operation.
	InsightsFreshness    time.Duration
	BatteryFreshness     time.Duration
	PerformanceFreshness time.Duration
	QueryFreshness       time.Duration
	// DispatchTimeout and RetryAttempts override the dispatcher defaults
	// when set.
	DispatchTimeout time.Duration
	RetryAttempts   int

	// CredentialEnvs lists the environment variables a runtime
	// registration may reference as its API key. Empty allows none.
	CredentialEnvs []string
	// ReservedProviders cannot be replaced or added by RegisterFromConfig.
	ReservedProviders []string

	Build     BuildFunc
	Publisher EventPublisher
	Logger    zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.InsightsFreshness <= 0 {
		c.InsightsFreshness = defaultInsightsFreshness
	}
	if c.BatteryFreshness <= 0 {
		c.BatteryFreshness = defaultBatteryFreshness
	}
	if c.PerformanceFreshness <= 0 {
		c.PerformanceFreshness = defaultPerformanceFreshness
	}
	if c.QueryFreshness <= 0 {
		c.QueryFreshness = defaultQueryFreshness
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c
}

func (c Config) freshness(kind provider.RequestKind) time.Duration {
	switch kind {
	case provider.RequestBattery:
		return c.BatteryFreshness
	case provider.RequestPerformance:
		return c.PerformanceFreshness
	case provider.RequestQuery:
		return c.QueryFreshness
	default:
		return c.InsightsFreshness
	}
}

// ConfigFrom maps the file configuration onto orchestrator settings.
// Providers named in the file are reserved.
func ConfigFrom(fc config.Config) Config {
	reserved := make([]string, 0, len(fc.Providers))
	for _, pc := range fc.Providers {
		reserved = append(reserved, strings.TrimSpace(pc.Name))
	}
	return Config{
		DefaultProviders:     append([]string(nil), fc.DefaultProviders...),
		CredentialEnvs:       append([]string(nil), fc.RuntimeCredentialEnvs...),
		ReservedProviders:    reserved,
		InsightsFreshness:    config.Ms(fc.Freshness.InsightsMs),
		BatteryFreshness:     config.Ms(fc.Freshness.BatteryMs),
		PerformanceFreshness: config.Ms(fc.Freshness.PerformanceMs),
		QueryFreshness:       config.Ms(fc.Freshness.QueryMs),
	}
}

func (c Config) credentialAllowed(env string) bool {
	return slices.Contains(c.CredentialEnvs, env)
}

func (c Config) reserved(name string) bool {
	return slices.Contains(c.ReservedProviders, name)
}
