package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"insightd/internal/backend"
	"insightd/internal/config"
	"insightd/internal/device"
	"insightd/internal/dispatch"
	"insightd/internal/orchestrator"
	"insightd/internal/provider"
	"insightd/internal/registry"
	"insightd/internal/snapcache"
)

// loadConfig reads the config file (if any), applies environment and flag
// overrides, fills defaults and validates.
func loadConfig(path, addr, level, format string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if v := os.Getenv("INSIGHTD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("INSIGHTD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if level != "" {
		cfg.LogLevel = level
	}
	if format != "" {
		cfg.LogFormat = format
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// primaryCollector builds the "default" source. Replaced in tests.
var primaryCollector = func(log zerolog.Logger) device.Collector {
	return device.NewHostCollector(log)
}

// buildOrchestrator wires the registry, cache, dispatcher and configured
// providers. The returned orchestrator is not yet initialized.
func buildOrchestrator(cfg config.Config, log zerolog.Logger) (*orchestrator.Orchestrator, error) {
	reg := registry.New(log)
	cache := snapcache.New(log, snapcache.WithCollectTimeout(config.Ms(cfg.CollectTimeoutMs)))
	disp := dispatch.New(reg, dispatch.Config{
		Timeout:       config.Ms(cfg.Dispatch.TimeoutMs),
		RetryAttempts: cfg.Dispatch.RetryAttempts,
		BackoffBase:   config.Ms(cfg.Dispatch.BackoffBaseMs),
		BackoffMax:    config.Ms(cfg.Dispatch.BackoffMaxMs),
	}, log)

	for _, pc := range cfg.Providers {
		desc, b, err := backend.Build(pc, log)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(desc, b); err != nil {
			return nil, fmt.Errorf("register %s: %w", pc.Name, err)
		}
	}

	oc := orchestrator.ConfigFrom(cfg)
	oc.Build = func(pc config.ProviderConfig) (provider.Descriptor, provider.Backend, error) {
		return backend.Build(pc, log)
	}
	oc.Publisher = orchestrator.LogPublisher{Log: log}
	oc.Logger = log
	return orchestrator.New(orchestrator.Deps{
		Registry:   reg,
		Cache:      cache,
		Dispatcher: disp,
		Collector:  primaryCollector(log),
	}, oc), nil
}

// startOrchestrator builds and initializes the orchestrator.
func startOrchestrator(ctx context.Context, cfg config.Config, log zerolog.Logger) (*orchestrator.Orchestrator, error) {
	o, err := buildOrchestrator(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := o.Init(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
