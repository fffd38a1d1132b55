package backend

// dependencyUnavailableError signals a backend that was not compiled into
// this binary (for example llama without the llama build tag).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}

// unknownTypeError is returned by Build for an unrecognized provider type.
type unknownTypeError struct{ typ string }

func (e unknownTypeError) Error() string { return "unknown provider type: " + e.typ }

// IsUnknownType reports whether err came from an unrecognized provider type.
func IsUnknownType(err error) bool {
	_, ok := err.(unknownTypeError)
	return ok
}
