//go:build !llama

package backend

import (
	"context"

	"insightd/internal/provider"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = false

// Llama is a stub compiled without the llama build tag. It registers but
// never connects, so the registry reports it as failed.
type Llama struct {
	cfg LlamaConfig
}

var _ provider.Generator = (*Llama)(nil)

func NewLlama(cfg LlamaConfig) *Llama { return &Llama{cfg: cfg.withDefaults()} }

func (l *Llama) Connect(context.Context) error {
	return ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

func (l *Llama) Close() error { return nil }

func (l *Llama) Generate(ctx context.Context, _ provider.Payload) (provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return provider.Response{}, err
	}
	return provider.Response{}, &provider.Error{
		Kind:     provider.FailureTransport,
		Provider: l.cfg.Name,
		Err:      ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)"),
	}
}
