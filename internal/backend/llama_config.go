package backend

import (
	"runtime"
	"strings"

	"insightd/internal/provider"
)

// LlamaConfig configures the in-process llama.cpp backend.
type LlamaConfig struct {
	Name        string
	ModelPath   string
	ContextSize int
	Threads     int
	MaxTokens   int
	Temperature float32
}

func (c LlamaConfig) withDefaults() LlamaConfig {
	if c.ContextSize <= 0 {
		c.ContextSize = 2048
	}
	if c.Threads <= 0 {
		c.Threads = max(1, runtime.NumCPU()/2)
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	return c
}

// prompt flattens a chat payload into a single completion prompt.
func (c LlamaConfig) prompt(p provider.Payload) string {
	var b strings.Builder
	if p.SystemPrompt != "" {
		b.WriteString(p.SystemPrompt)
		b.WriteString("\n\n")
	}
	if p.Rendered != "" {
		b.WriteString(p.Rendered)
	} else {
		b.WriteString(p.Prompt)
	}
	b.WriteString("\nAnswer:")
	return b.String()
}

// LlamaAvailable reports whether this binary can run llama models.
func LlamaAvailable() bool { return llamaBuilt }
