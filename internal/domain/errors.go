package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoText marks candidates without any extractable body; they are skipped, not logged as failures.
	ErrNoText = errors.New("no text content")
	// ErrSessionStopped is returned when an operation is attempted on a stopped session.
	ErrSessionStopped = errors.New("discovery session stopped")
)

// ExtractionError wraps a per-candidate failure inside the extractor or identity assigner.
type ExtractionError struct {
	Index int
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract candidate %d: %v", e.Index, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TransportError reports a delivery failure on one emitter channel.
type TransportError struct {
	Channel string
	PostID  string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deliver %s via %s: %v", e.PostID, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SourceUnavailableError means the observed document is gone; it halts the owning session.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or invalid external configuration for an optional feature.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// IsSourceUnavailable reports whether err (or anything it wraps) is a SourceUnavailableError.
func IsSourceUnavailable(err error) bool {
	var target *SourceUnavailableError
	return errors.As(err, &target)
}
