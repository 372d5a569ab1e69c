// Package secrets holds what the secret store backends share.
package secrets

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Path turns a secret key such as "pocketfi://acc-1/session" into the
// relative slash path "pocketfi/acc-1/session" used by the backends.
func Path(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("secret key is empty")
	}

	if scheme, rest, ok := strings.Cut(trimmed, "://"); ok {
		if scheme == "" || strings.Contains(scheme, "/") {
			return "", fmt.Errorf("invalid secret key %q", key)
		}
		trimmed = scheme + "/" + rest
	}

	if strings.HasPrefix(trimmed, "/") || strings.Contains(trimmed, "\\") {
		return "", fmt.Errorf("invalid secret key %q", key)
	}

	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid secret key %q", key)
	}

	return cleaned, nil
}
