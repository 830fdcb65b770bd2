package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for backend call classification.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrQuotaExhausted indicates the backend rejected the call for capacity
	// or rate-limit reasons. Callers should surface it as retryable (429).
	ErrQuotaExhausted = errors.New("model quota exhausted")

	// ErrBackend indicates a generic backend failure (502-equivalent).
	ErrBackend = errors.New("model backend failure")
)

// quotaMarkers are substrings that identify capacity errors across providers.
var quotaMarkers = []string{
	"rate limit",
	"quota",
	"resource exhausted",
	"too many requests",
	"429",
	"overloaded",
	"capacity",
}

// classifyBackendError wraps an error with the matching sentinel so HTTP
// handlers can map it to a status code without string matching of their own.
func classifyBackendError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ErrQuotaExhausted, err.Error())
		}
	}
	return fmt.Errorf("%w: %s", ErrBackend, err.Error())
}
