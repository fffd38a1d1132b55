package registry

import "errors"

var (
	// ErrProviderNotFound is matched by errors.Is for lookups of unknown names.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrDuplicateProvider is returned by strict registration of an existing name.
	ErrDuplicateProvider = errors.New("duplicate provider")
	// ErrInvalidDescriptor rejects descriptors that cannot be registered.
	ErrInvalidDescriptor = errors.New("invalid provider descriptor")
	// ErrConnectInterrupted is returned by Connect when the provider was
	// disconnected, replaced or removed before the connect finished.
	ErrConnectInterrupted = errors.New("provider disconnected while connecting")
)

type providerNotFoundError struct{ name string }

func (e providerNotFoundError) Error() string { return "provider not found: " + e.name }

func (e providerNotFoundError) Is(target error) bool { return target == ErrProviderNotFound }

// ErrNotFound returns a not-found error naming the provider.
func ErrNotFound(name string) error { return providerNotFoundError{name: name} }

// IsProviderNotFound reports whether err indicates an unknown provider.
func IsProviderNotFound(err error) bool { return errors.Is(err, ErrProviderNotFound) }

type duplicateProviderError struct{ name string }

func (e duplicateProviderError) Error() string { return "duplicate provider: " + e.name }

func (e duplicateProviderError) Is(target error) bool { return target == ErrDuplicateProvider }

// IsDuplicateProvider reports whether err came from strict registration.
func IsDuplicateProvider(err error) bool { return errors.Is(err, ErrDuplicateProvider) }

type invalidDescriptorError struct{ msg string }

func (e invalidDescriptorError) Error() string { return "invalid provider descriptor: " + e.msg }

func (e invalidDescriptorError) Is(target error) bool { return target == ErrInvalidDescriptor }

// IsInvalidDescriptor reports whether err rejected a malformed descriptor.
func IsInvalidDescriptor(err error) bool { return errors.Is(err, ErrInvalidDescriptor) }
