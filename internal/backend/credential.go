package backend

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// CredentialRef builds the reference stored on a descriptor for an
// environment variable. An empty name yields no reference.
func CredentialRef(envName string) string {
	envName = strings.TrimSpace(envName)
	if envName == "" {
		return ""
	}
	return "env:" + envName
}

// ResolveCredential looks up a credential reference. Only "env:NAME" is
// supported; the value is read at call time and never cached.
func ResolveCredential(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "env:")
	if !ok || name == "" {
		return "", fmt.Errorf("unsupported credential reference %q", ref)
	}
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", errors.New("credential " + name + " is not set")
	}
	return v, nil
}
