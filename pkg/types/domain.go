package types

// ProviderStatus is the public view of a registered provider. Credentials are never included.
type ProviderStatus struct {
	// Unique provider name.
	// example: openai
	Name string `json:"name" example:"openai"`
	// ai_provider or data_source.
	// example: ai_provider
	Kind string `json:"kind" example:"ai_provider"`
	// Connection target.
	// example: https://api.openai.com/v1
	Endpoint string `json:"endpoint,omitempty" example:"https://api.openai.com/v1"`
	// Declared capabilities.
	// example: ["text-generation"]
	Capabilities []string `json:"capabilities" example:"[\"text-generation\"]"`
	// disconnected, connecting, connected or failed.
	// example: connected
	State string `json:"state" example:"connected"`
	// Last successful use (unix seconds, 0 if never).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix,omitempty" example:"1700000000"`
	// Last error message observed for this provider.
	LastError string `json:"last_error,omitempty"`
	// When LastError was recorded (unix seconds).
	LastErrorAt int64 `json:"last_error_unix,omitempty"`
}
