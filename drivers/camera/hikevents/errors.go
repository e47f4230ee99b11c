package hikevents

import (
	"github.com/pkg/errors"
)

// Error kinds produced by the client. Every error returned from the state
// handlers wraps exactly one of them and can be tested with errors.Is.
var (
	ErrConnectFailure   = errors.New("connect failure")
	ErrTransportFailure = errors.New("transport failure")
	ErrStaleStream      = errors.New("stale stream")
	ErrParse            = errors.New("parse error")
)

// kindError attaches an error kind to an underlying cause.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

func withKind(kind, cause error, msg string) error {
	if cause == nil {
		return &kindError{kind: kind, cause: errors.New(msg)}
	}
	return &kindError{kind: kind, cause: errors.WithMessage(cause, msg)}
}

// FatalError ends the worker loop. Cause is the error or recovered panic value
// that escaped the per-state handling.
type FatalError struct {
	Cause error
	State ConnectionState
}

func (e *FatalError) Error() string {
	return "alert stream worker stopped in state " + e.State.String() + ": " + e.Cause.Error()
}

func (e *FatalError) Unwrap() error { return e.Cause }

// isRecoverable reports whether err is one of the non-fatal kinds.
func isRecoverable(err error) bool {
	return errors.Is(err, ErrConnectFailure) ||
		errors.Is(err, ErrTransportFailure) ||
		errors.Is(err, ErrStaleStream) ||
		errors.Is(err, ErrParse)
}
