//go:build llama

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"insightd/internal/common/fsutil"
	"insightd/internal/provider"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// Llama runs a GGUF model in-process through go-llama.cpp. A loaded model
// serves one prediction at a time.
type Llama struct {
	cfg LlamaConfig

	mu    sync.Mutex
	model *llama.LLama
}

var _ provider.Generator = (*Llama)(nil)

// NewLlama returns an unloaded backend; Connect loads the model.
func NewLlama(cfg LlamaConfig) *Llama { return &Llama{cfg: cfg.withDefaults()} }

func (l *Llama) fail(kind provider.FailureKind, err error) error {
	return &provider.Error{Kind: kind, Provider: l.cfg.Name, Err: err}
}

func (l *Llama) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		return nil
	}
	path, err := fsutil.RegularFile(l.cfg.ModelPath)
	if err != nil {
		return l.fail(provider.FailureTransport, fmt.Errorf("model file: %w", err))
	}
	m, err := llama.New(path, llama.SetContext(l.cfg.ContextSize))
	if err != nil {
		return l.fail(provider.FailureTransport, err)
	}
	l.model = m
	return nil
}

func (l *Llama) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

func (l *Llama) Generate(ctx context.Context, p provider.Payload) (provider.Response, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return provider.Response{}, l.fail(provider.FailureTransport, errors.New("llama model not loaded"))
	}
	// Stop predicting once the dispatcher gives up on this call.
	l.model.SetTokenCallback(func(string) bool {
		return ctx.Err() == nil
	})
	text, err := l.model.Predict(l.cfg.prompt(p), predictOptions(l.cfg)...)
	if ctx.Err() != nil {
		return provider.Response{}, ctx.Err()
	}
	if err != nil {
		return provider.Response{}, l.fail(provider.FailureInvalidResponse, err)
	}
	return provider.Response{Text: strings.TrimSpace(text), Model: l.cfg.ModelPath, FinishReason: "stop"}, nil
}

func predictOptions(cfg LlamaConfig) []llama.PredictOption {
	temp := cfg.Temperature
	if temp <= 0 {
		temp = llama.DefaultOptions.Temperature
	}
	return []llama.PredictOption{
		llama.SetTokens(cfg.MaxTokens),
		llama.SetThreads(cfg.Threads),
		llama.SetTopP(llama.DefaultOptions.TopP),
		llama.SetTopK(llama.DefaultOptions.TopK),
		llama.SetTemperature(temp),
		llama.SetPenalty(llama.DefaultOptions.Penalty),
	}
}
