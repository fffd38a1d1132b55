package orchestrator

import (
	"errors"
	"fmt"
)

// ErrEmptyPrompt is returned by QueryDeviceInfo for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt is empty")

// Error names reported in InsightResult.Error.
const (
	ErrNameEmptyPrompt = "EmptyPromptError"
	ErrNameCollection  = "CollectionError"
)

// IsEmptyPrompt reports whether err indicates a blank prompt (return 400).
func IsEmptyPrompt(err error) bool { return errors.Is(err, ErrEmptyPrompt) }

var errNoCollector = errors.New("no device collector configured")

// ErrCredentialNotAllowed is matched when a runtime registration references
// a credential variable outside the configured allowlist.
var ErrCredentialNotAllowed = errors.New("credential variable not allowed for runtime registration")

// ErrReservedProvider is matched when a runtime registration targets a
// provider defined in the configuration file.
var ErrReservedProvider = errors.New("provider is defined in configuration")

func credentialNotAllowed(env string) error {
	return fmt.Errorf("%w: %s", ErrCredentialNotAllowed, env)
}

func reservedProvider(name string) error {
	return fmt.Errorf("%w: %s", ErrReservedProvider, name)
}

// IsCredentialNotAllowed reports whether err is a rejected credential
// reference (return 400).
func IsCredentialNotAllowed(err error) bool { return errors.Is(err, ErrCredentialNotAllowed) }

// IsReservedProvider reports whether err is an attempt to replace a
// configured provider (return 409).
func IsReservedProvider(err error) bool { return errors.Is(err, ErrReservedProvider) }
