package safeguarding

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded indicates the provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("ai quota exceeded")
	// ErrUnknownSubject is returned when a session holds no token for a subject.
	ErrUnknownSubject = errors.New("subject unknown to session")
	// ErrSessionClosed is returned by a tokenizer session after Close.
	ErrSessionClosed = errors.New("tokenizer session closed")
	// ErrInvalidTransition is returned when a pipeline stage runs out of order.
	ErrInvalidTransition = errors.New("invalid pipeline transition")
)

// AnonymityViolation reports PII detected at the provider boundary. Field is
// a structural path only; the offending value is never kept.
type AnonymityViolation struct {
	Stage string
	Field string
}

func (e *AnonymityViolation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("anonymity violation at %s", e.Stage)
	}
	return fmt.Sprintf("anonymity violation at %s: field %s", e.Stage, e.Field)
}

type ProviderErrorKind string

const (
	ProviderTimeout   ProviderErrorKind = "timeout"
	ProviderNetwork   ProviderErrorKind = "network"
	ProviderMalformed ProviderErrorKind = "malformed"
	ProviderQuota     ProviderErrorKind = "quota"
)

// ProviderError wraps a failure of the external provider.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidationError rejects input before tokenization.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PipelineError is the sanitized error returned when a stage fails. It
// carries the stage name and a generic message only.
type PipelineError struct {
	Stage   string
	Message string
	cause   error
}

func NewPipelineError(stage, message string, cause error) *PipelineError {
	return &PipelineError{Stage: stage, Message: message, cause: cause}
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %s", e.Stage, e.Message)
}

// Unwrap exposes the cause for errors.Is/As inside the process. The cause
// is never rendered by Error.
func (e *PipelineError) Unwrap() error { return e.cause }
