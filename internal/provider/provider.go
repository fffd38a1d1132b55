// Package provider holds the contracts shared by the registry, the dispatcher
// and the concrete backends: descriptors, capability interfaces, request
// payloads and the failure taxonomy.
package provider

import (
	"context"
	"time"

	"insightd/internal/device"
)

// Kind tags a provider as an AI backend or a device-data source.
type Kind string

const (
	KindAIProvider Kind = "ai_provider"
	KindDataSource Kind = "data_source"
)

// ParseKind accepts the config spellings of Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "ai_provider", "AI_PROVIDER", "ai":
		return KindAIProvider, true
	case "data_source", "DATA_SOURCE", "source":
		return KindDataSource, true
	}
	return "", false
}

// State is the connection lifecycle of a registered provider.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Well-known capabilities.
const (
	CapTextGeneration = "text-generation"
	CapBatteryMonitor = "battery-monitor"
	CapMemoryMonitor  = "memory-monitor"
	CapStorageMonitor = "storage-monitor"
	CapCPUMonitor     = "cpu-monitor"
	CapNetworkMonitor = "network-monitor"
	CapDeviceSnapshot = "device-snapshot"
)

// Descriptor describes one registered backend connection.
type Descriptor struct {
	Name     string
	Kind     Kind
	Endpoint string
	// Auth is a credential reference such as "env:OPENAI_API_KEY". It is
	// never logged and never serialized.
	Auth         string `json:"-"`
	Capabilities []string
	State        State
	LastUsed     *time.Time
	LastError    string
	LastErrorAt  *time.Time
}

// HasCapability reports whether cap was declared at registration.
func (d Descriptor) HasCapability(c string) bool {
	for _, x := range d.Capabilities {
		if x == c {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of the registry.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Capabilities = append([]string(nil), d.Capabilities...)
	if d.LastUsed != nil {
		t := *d.LastUsed
		out.LastUsed = &t
	}
	if d.LastErrorAt != nil {
		t := *d.LastErrorAt
		out.LastErrorAt = &t
	}
	return out
}

// Backend is the lifecycle every provider kind shares. Connect must be
// idempotent; Close releases resources and may be called more than once.
type Backend interface {
	Connect(ctx context.Context) error
	Close() error
}

// Generator is the capability interface of AI providers.
type Generator interface {
	Backend
	Generate(ctx context.Context, p Payload) (Response, error)
}

// Source is the capability interface of device-data sources.
type Source interface {
	Backend
	Collect(ctx context.Context) (device.Snapshot, error)
}

// RequestKind identifies which facade operation produced a payload.
type RequestKind string

const (
	RequestInsights    RequestKind = "insights"
	RequestBattery     RequestKind = "battery"
	RequestPerformance RequestKind = "performance"
	RequestQuery       RequestKind = "query"
)

// Payload is what a Generator receives: the caller's prompt plus the
// snapshot fields relevant to it.
type Payload struct {
	Kind         RequestKind
	SystemPrompt string
	Prompt       string
	Fields       map[string]any
	// Rendered is SystemPrompt-free user text combining Prompt and Fields.
	Rendered string
}

// Response is a successful backend answer.
type Response struct {
	Text string
	// Raw is the undecoded backend body, kept for debugging.
	Raw          []byte
	Model        string
	FinishReason string
}
