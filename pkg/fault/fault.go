// Package fault defines the error taxonomy shared by the story parser,
// the backends and the orchestrator. Errors are values carried in step
// records; the Kind drives reporting and exit-code decisions.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for reporting.
type Kind string

const (
	ParseError            Kind = "ParseError"            // malformed YAML or unknown kind/field
	Config                Kind = "Config"                // missing/invalid backend configuration
	BackendTransport      Kind = "BackendTransport"      // TCP/HTTP I/O failure after retries
	BackendProtocol       Kind = "BackendProtocol"       // response violates the expected shape
	CapabilityUnavailable Kind = "CapabilityUnavailable" // client-plane op on a console-only backend
	Timeout               Kind = "Timeout"               // per-action deadline exceeded
	ReferenceUnbound      Kind = "ReferenceUnbound"      // unknown variable or step-id reference
	ValidationFailed      Kind = "ValidationFailed"      // expect* validator mismatched
	AssertionFailed       Kind = "AssertionFailed"       // assertion evaluated to false
	Cancelled             Kind = "Cancelled"             // external cancellation
)

// Error is a classified error with a one-line message and optional detail
// (response body, protocol dump).
type Error struct {
	Kind   Kind
	Msg    string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail attaches additional detail and returns the same error.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// KindOf extracts the Kind from an error chain. Unclassified errors map to
// BackendTransport, the catch-all for unexpected I/O failures.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return BackendTransport
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
