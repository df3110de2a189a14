package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for upload failure classification. The workflow
// manager consults Retryable to decide between scheduling a backoff
// retry and failing a capture permanently.
var (
	// ErrNetwork marks connectivity and timeout failures.
	ErrNetwork = errors.New("network error")
	// ErrServer marks 5xx responses from the backend.
	ErrServer = errors.New("server error")
	// ErrClient marks 4xx responses (validation, auth); not retryable.
	ErrClient = errors.New("client error")
	// ErrEncoding marks malformed payloads; not retryable.
	ErrEncoding = errors.New("encoding error")
)

// Wrap builds an error message that includes component context while
// tagging it with the provided marker for later classification. The
// marker should be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether an upload failure is worth another attempt.
// Unclassified errors are treated as transient so a flaky environment
// never burns a capture permanently on the first surprise.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrClient), errors.Is(err, ErrEncoding):
		return false
	default:
		return true
	}
}

// Kind returns the classification label for an error, for logs and
// status output.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrClient):
		return "client"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "unknown"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
