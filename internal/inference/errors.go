package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransportError indicates the backend was unreachable, slow, or returned a
// server-side failure. Timeouts, connection errors, and 5xx responses are
// all folded into this one kind: the caller treats them identically with a
// bounded retry, then surfaces an infrastructure violation.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s backend unavailable: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps a backend failure.
func NewTransportError(provider string, err error) *TransportError {
	return &TransportError{Provider: provider, Err: err}
}

// IsTransport reports whether an error should follow the transport retry
// path. Context deadline expiry and net-level errors count even when a
// provider did not wrap them.
func IsTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
