// Package backend holds the concrete provider implementations (OpenAI
// compatible HTTP, in-process llama.cpp, host and file data sources) and the
// factory that builds them from configuration.
package backend

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"insightd/internal/config"
	"insightd/internal/device"
	"insightd/internal/provider"
)

// Provider types accepted by Build.
const (
	TypeOpenAI = "openai"
	TypeLlama  = "llama"
	TypeHost   = "host"
	TypeFile   = "file"
)

var hostCapabilities = []string{
	provider.CapDeviceSnapshot,
	provider.CapBatteryMonitor,
	provider.CapMemoryMonitor,
	provider.CapStorageMonitor,
	provider.CapCPUMonitor,
	provider.CapNetworkMonitor,
}

// Build constructs the descriptor and backend for one configured provider.
// The backend is not connected.
func Build(pc config.ProviderConfig, log zerolog.Logger) (provider.Descriptor, provider.Backend, error) {
	typ := strings.ToLower(strings.TrimSpace(pc.Type))
	desc := provider.Descriptor{
		Name:         strings.TrimSpace(pc.Name),
		Endpoint:     pc.Endpoint,
		Capabilities: append([]string(nil), pc.Capabilities...),
	}
	if pc.Kind != "" {
		k, ok := provider.ParseKind(pc.Kind)
		if !ok {
			return provider.Descriptor{}, nil, fmt.Errorf("provider %q: unknown kind %q", pc.Name, pc.Kind)
		}
		desc.Kind = k
	}

	var b provider.Backend
	switch typ {
	case TypeOpenAI:
		desc.Auth = CredentialRef(pc.APIKeyEnv)
		b = NewOpenAI(OpenAIConfig{
			Name:           desc.Name,
			BaseURL:        pc.Endpoint,
			Model:          pc.Model,
			Credential:     desc.Auth,
			SkipProbe:      pc.SkipProbe,
			MaxTokens:      pc.MaxTokens,
			Temperature:    pc.Temperature,
			ConnectTimeout: config.Ms(pc.TimeoutMs),
		}, log)
		defaults(&desc, provider.KindAIProvider, provider.CapTextGeneration)
	case TypeLlama:
		b = NewLlama(LlamaConfig{
			Name:        desc.Name,
			ModelPath:   pc.Path,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		})
		if desc.Endpoint == "" {
			desc.Endpoint = "file://" + pc.Path
		}
		defaults(&desc, provider.KindAIProvider, provider.CapTextGeneration)
	case TypeHost:
		opts := []device.HostOption{device.WithSourceName(desc.Name)}
		if pc.Path != "" {
			opts = append(opts, device.WithDiskPath(pc.Path))
		}
		b = NewCollectorSource(device.NewHostCollector(log, opts...), false)
		if desc.Endpoint == "" {
			desc.Endpoint = "host://local"
		}
		defaults(&desc, provider.KindDataSource, hostCapabilities...)
	case TypeFile:
		fc, err := device.NewFileCollector(desc.Name, pc.Path)
		if err != nil {
			return provider.Descriptor{}, nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		b = NewCollectorSource(fc, !pc.SkipProbe)
		if desc.Endpoint == "" {
			desc.Endpoint = "file://" + fc.Path()
		}
		defaults(&desc, provider.KindDataSource, provider.CapDeviceSnapshot)
	default:
		return provider.Descriptor{}, nil, unknownTypeError{typ: pc.Type}
	}
	return desc, b, nil
}

func defaults(d *provider.Descriptor, kind provider.Kind, caps ...string) {
	if d.Kind == "" {
		d.Kind = kind
	}
	if len(d.Capabilities) == 0 {
		d.Capabilities = append([]string(nil), caps...)
	}
}
