package pipeline

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a fetch attempt produced no usable document.
// The fallback decision in the fetch strategy switches on the kind instead
// of inspecting error strings.
type FailureKind string

// Failure kinds.
const (
	// FailureTransient covers timeouts and connection failures; the static
	// fetcher retries these with backoff before giving up.
	FailureTransient FailureKind = "transient"
	// FailureTerminal covers HTTP error statuses and other conditions that
	// retrying the same way cannot fix.
	FailureTerminal FailureKind = "terminal"
	// FailureContentInvalid means a document was retrieved but lacks the
	// required elements; the caller should escalate to rendering.
	FailureContentInvalid FailureKind = "content_invalid"
	// FailureUnavailable means the fetcher itself is not operational, e.g.
	// the browser session never initialized.
	FailureUnavailable FailureKind = "unavailable"
)

// FetchError is the typed failure returned by fetchers.
type FetchError struct {
	Kind    FailureKind
	Method  Method
	Message string
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s fetch %s: %s: %v", e.Method, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s fetch %s: %s", e.Method, e.Kind, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// NewFetchError builds a typed fetch failure.
func NewFetchError(kind FailureKind, method Method, message string, cause error) *FetchError {
	return &FetchError{Kind: kind, Method: method, Message: message, Cause: cause}
}

// KindOf extracts the failure kind from an error chain, defaulting to
// terminal for errors that did not originate in a fetcher.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureTerminal
}
