package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRetryable marks terminal failures an upstream job-retry layer may re-enqueue:
	// rate limiting, 5xx responses, connectivity.
	ErrRetryable = errors.New("retryable failure")
	// ErrFatal marks terminal failures that should not be re-enqueued.
	ErrFatal = errors.New("fatal failure")
	// ErrQuotaExhausted indicates no credential/model pair is currently available.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrNotFound indicates a lookup produced no usable result (e.g. no relevant footage).
	ErrNotFound = errors.New("not found")
	// ErrExternalTool indicates an external process invocation failed.
	ErrExternalTool = errors.New("external tool error")
	// ErrConfiguration indicates invalid or missing configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFatal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a terminal pipeline error may be re-enqueued.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
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
