package pipeline

import (
	"errors"
	"fmt"
)

// TransientFetchError wraps a retryable fetch failure (timeout, connection
// reset, 5xx).
type TransientFetchError struct {
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient fetch error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError wraps a non-retryable fetch failure (4xx, unsupported
// content type).
type PermanentFetchError struct {
	Status int
	Err    error
}

func (e *PermanentFetchError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("permanent fetch error (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("permanent fetch error: %v", e.Err)
}

func (e *PermanentFetchError) Unwrap() error { return e.Err }

// ExtractionError wraps malformed-content failures. The record becomes
// Failed; the pool keeps running.
type ExtractionError struct {
	ContentType string
	Err         error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q: %v", e.ContentType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ConfigError is the only run-fatal error class besides explicit
// cancellation. It is surfaced before any work starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the retryable failure class.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}
