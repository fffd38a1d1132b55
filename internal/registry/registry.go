// Package registry holds the named backend connections (AI providers and
// device-data sources) together with their capability sets and connection
// state. The registry never talks to the network itself; Connect delegates to
// the backend supplied at registration.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"insightd/internal/provider"
)

type entry struct {
	desc    provider.Descriptor
	backend provider.Backend
	// connecting is closed when the in-flight Connect finishes; connErr
	// then holds its outcome.
	connecting chan struct{}
	connErr    error
}

// Registry is safe for concurrent use. Mutations are last-writer-wins.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	log     zerolog.Logger
	now     func() time.Time
}

// New returns an empty registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		log:     log.With().Str("component", "registry").Logger(),
		now:     time.Now,
	}
}

// RegisterOption customizes a single Register call.
type RegisterOption func(*registerOpts)

type registerOpts struct{ strict bool }

// Strict makes Register fail with ErrDuplicateProvider instead of replacing.
func Strict() RegisterOption { return func(o *registerOpts) { o.strict = true } }

// Register adds or replaces a provider by name. A replaced entry keeps its
// position in registration order; its old backend is closed if it was
// connected and the new entry starts disconnected.
func (r *Registry) Register(desc provider.Descriptor, b provider.Backend, opts ...RegisterOption) error {
	var o registerOpts
	for _, fn := range opts {
		fn(&o)
	}
	desc.Name = strings.TrimSpace(desc.Name)
	if err := validate(desc, b); err != nil {
		return err
	}
	desc = desc.Clone()
	desc.Capabilities = dedupe(desc.Capabilities)
	desc.State = provider.StateDisconnected
	desc.LastUsed, desc.LastError, desc.LastErrorAt = nil, "", nil

	r.mu.Lock()
	old, exists := r.entries[desc.Name]
	if exists && o.strict {
		r.mu.Unlock()
		return duplicateProviderError{name: desc.Name}
	}
	// An old entry with a connect in flight is closed by that Connect.
	closeOld := exists && old.desc.State == provider.StateConnected && old.connecting == nil
	r.entries[desc.Name] = &entry{desc: desc, backend: b}
	if !exists {
		r.order = append(r.order, desc.Name)
	}
	r.mu.Unlock()

	if closeOld {
		if err := old.backend.Close(); err != nil {
			r.log.Warn().Err(err).Str("provider", desc.Name).Msg("close replaced backend")
		}
	}
	r.log.Debug().Str("provider", desc.Name).Str("kind", string(desc.Kind)).Bool("replaced", exists).Msg("provider registered")
	return nil
}

func validate(desc provider.Descriptor, b provider.Backend) error {
	if desc.Name == "" {
		return invalidDescriptorError{msg: "name is required"}
	}
	if b == nil {
		return invalidDescriptorError{msg: desc.Name + ": backend is nil"}
	}
	switch desc.Kind {
	case provider.KindAIProvider:
		if _, ok := b.(provider.Generator); !ok {
			return invalidDescriptorError{msg: desc.Name + ": ai_provider backend cannot generate"}
		}
	case provider.KindDataSource:
		if _, ok := b.(provider.Source); !ok {
			return invalidDescriptorError{msg: desc.Name + ": data_source backend cannot collect"}
		}
	default:
		return invalidDescriptorError{msg: desc.Name + ": unknown kind " + string(desc.Kind)}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Deregister removes a provider, closing its backend.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound(name)
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	inFlight := e.connecting != nil
	r.mu.Unlock()
	if inFlight {
		return nil
	}
	if err := e.backend.Close(); err != nil {
		r.log.Warn().Err(err).Str("provider", name).Msg("close deregistered backend")
	}
	return nil
}

// Connect moves a provider through connecting to connected or failed. It is
// a no-op for providers that are already connected. Concurrent callers share
// one backend connect. A Disconnect, Deregister or replacement that lands
// while connecting wins: a backend that did connect is closed again and
// ErrConnectInterrupted is returned.
func (r *Registry) Connect(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound(name)
	}
	if e.desc.State == provider.StateConnected {
		r.mu.Unlock()
		return nil
	}
	if done := e.connecting; done != nil {
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		r.mu.RLock()
		defer r.mu.RUnlock()
		return e.connErr
	}
	done := make(chan struct{})
	e.connecting = done
	e.desc.State = provider.StateConnecting
	b := e.backend
	r.mu.Unlock()

	err := b.Connect(ctx)

	r.mu.Lock()
	cur, ok := r.entries[name]
	replaced := !ok || cur != e
	interrupted := replaced || e.desc.State != provider.StateConnecting
	closeBackend := replaced || (interrupted && err == nil)
	switch {
	case interrupted:
		if err == nil {
			err = ErrConnectInterrupted
		}
	case err != nil:
		now := r.now()
		e.desc.State = provider.StateFailed
		e.desc.LastError = err.Error()
		e.desc.LastErrorAt = &now
	default:
		e.desc.State = provider.StateConnected
	}
	e.connecting, e.connErr = nil, err
	close(done)
	r.mu.Unlock()

	if closeBackend {
		if cerr := b.Close(); cerr != nil {
			r.log.Warn().Err(cerr).Str("provider", name).Msg("close interrupted backend")
		}
	}
	switch {
	case interrupted:
		r.log.Debug().Str("provider", name).Msg("connect interrupted")
	case err != nil:
		r.log.Warn().Err(err).Str("provider", name).Msg("provider connect failed")
	default:
		r.log.Debug().Str("provider", name).Msg("provider connected")
	}
	return err
}

// Disconnect closes a provider's backend and marks it disconnected. A connect
// in flight is interrupted and closes the backend itself.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound(name)
	}
	wasConnected := e.desc.State == provider.StateConnected
	e.desc.State = provider.StateDisconnected
	r.mu.Unlock()
	if wasConnected {
		return e.backend.Close()
	}
	return nil
}

// DisconnectAll disconnects every provider; close errors are logged.
func (r *Registry) DisconnectAll() {
	for _, name := range r.Names() {
		if err := r.Disconnect(name); err != nil && !IsProviderNotFound(err) {
			r.log.Warn().Err(err).Str("provider", name).Msg("disconnect failed")
		}
	}
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (provider.Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return provider.Descriptor{}, ErrNotFound(name)
	}
	return e.desc.Clone(), nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []provider.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entries[n].desc.Clone())
	}
	return out
}

// ListByCapability returns connected descriptors declaring capability, in
// registration order.
func (r *Registry) ListByCapability(capability string) []provider.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []provider.Descriptor
	for _, n := range r.order {
		e := r.entries[n]
		if e.desc.State == provider.StateConnected && e.desc.HasCapability(capability) {
			out = append(out, e.desc.Clone())
		}
	}
	return out
}

// Generator returns the AI backend for name.
func (r *Registry) Generator(name string) (provider.Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, ErrNotFound(name)
	}
	g, ok := e.backend.(provider.Generator)
	if !ok || e.desc.Kind != provider.KindAIProvider {
		return nil, invalidDescriptorError{msg: name + " is not an ai_provider"}
	}
	return g, nil
}

// Source returns the data-source backend for name.
func (r *Registry) Source(name string) (provider.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, ErrNotFound(name)
	}
	s, ok := e.backend.(provider.Source)
	if !ok || e.desc.Kind != provider.KindDataSource {
		return nil, invalidDescriptorError{msg: name + " is not a data_source"}
	}
	return s, nil
}

// MarkUsed records a successful call.
func (r *Registry) MarkUsed(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.desc.LastUsed = &at
	}
}

// MarkFailed records the last error seen for a provider without changing its
// connection state; failover handles transient call errors.
func (r *Registry) MarkFailed(name string, err error, at time.Time) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		e.desc.LastError = err.Error()
		e.desc.LastErrorAt = &at
	}
}
