package orchestrator

import (
	"context"
	"errors"
	"strings"

	"insightd/internal/config"
	"insightd/internal/provider"
	"insightd/internal/registry"
	"insightd/pkg/types"
)

// RegisterProvider adds or replaces a provider and connects it. A failed
// connect is recorded on the descriptor and published, not returned.
func (o *Orchestrator) RegisterProvider(ctx context.Context, desc provider.Descriptor, b provider.Backend, strict bool) (provider.Descriptor, error) {
	var opts []registry.RegisterOption
	if strict {
		opts = append(opts, registry.Strict())
	}
	if err := o.reg.Register(desc, b, opts...); err != nil {
		return provider.Descriptor{}, err
	}
	if desc.Kind == provider.KindDataSource {
		o.cache.Invalidate(desc.Name)
	}
	o.pub.Publish(Event{Name: EventProviderRegistered, Provider: desc.Name, Fields: map[string]any{"kind": string(desc.Kind)}})
	if err := o.reg.Connect(ctx, desc.Name); err != nil {
		o.pub.Publish(Event{Name: EventProviderConnectFailed, Provider: desc.Name, Fields: map[string]any{"error": err.Error()}})
	}
	return o.reg.Get(desc.Name)
}

// RegisterFromConfig builds a provider with the configured BuildFunc and
// registers it. It serves runtime registration: reserved names are refused
// and the API key variable must be on the CredentialEnvs allowlist.
func (o *Orchestrator) RegisterFromConfig(ctx context.Context, pc config.ProviderConfig, strict bool) (provider.Descriptor, error) {
	if o.cfg.Build == nil {
		return provider.Descriptor{}, errors.New("provider construction is not configured")
	}
	if name := strings.TrimSpace(pc.Name); o.cfg.reserved(name) {
		return provider.Descriptor{}, reservedProvider(name)
	}
	if env := strings.TrimSpace(pc.APIKeyEnv); env != "" && !o.cfg.credentialAllowed(env) {
		return provider.Descriptor{}, credentialNotAllowed(env)
	}
	desc, b, err := o.cfg.Build(pc)
	if err != nil {
		return provider.Descriptor{}, err
	}
	return o.RegisterProvider(ctx, desc, b, strict)
}

// DeregisterProvider removes a provider, closing its backend.
func (o *Orchestrator) DeregisterProvider(name string) error {
	d, err := o.reg.Get(name)
	if err != nil {
		return err
	}
	if err := o.reg.Deregister(name); err != nil {
		return err
	}
	if d.Kind == provider.KindDataSource {
		o.cache.Invalidate(name)
	}
	o.pub.Publish(Event{Name: EventProviderDeregistered, Provider: name})
	return nil
}

// InvalidateCache drops the cached snapshot of one source, or all of them
// when source is empty.
func (o *Orchestrator) InvalidateCache(source string) {
	if source == "" {
		o.cache.InvalidateAll()
		return
	}
	o.cache.Invalidate(source)
}

// Providers lists registered providers in registration order.
func (o *Orchestrator) Providers() []types.ProviderStatus {
	list := o.reg.List()
	out := make([]types.ProviderStatus, 0, len(list))
	for _, d := range list {
		out = append(out, ProviderStatus(d))
	}
	return out
}

// ProviderStatus converts a descriptor to its public view.
func ProviderStatus(d provider.Descriptor) types.ProviderStatus {
	ps := types.ProviderStatus{
		Name:         d.Name,
		Kind:         string(d.Kind),
		Endpoint:     d.Endpoint,
		Capabilities: append([]string{}, d.Capabilities...),
		State:        string(d.State),
		LastError:    d.LastError,
	}
	if d.LastUsed != nil {
		ps.LastUsed = d.LastUsed.Unix()
	}
	if d.LastErrorAt != nil {
		ps.LastErrorAt = d.LastErrorAt.Unix()
	}
	return ps
}
