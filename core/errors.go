package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned synchronously for a zero Handle, a nil
	// Task or Listener, or an unknown event name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCallbackFailure matches every *CallbackError.
	ErrCallbackFailure = errors.New("callback failure")

	// ErrManagerClosed is returned by mutations after Shutdown.
	ErrManagerClosed = errors.New("interaction manager is closed")
)

// CallbackSource identifies which boundary a CallbackError was captured at.
type CallbackSource string

const (
	SourceDeferred CallbackSource = "deferred"
	SourceListener CallbackSource = "listener"
	SourceHost     CallbackSource = "host"
)

// CallbackError is a failure captured by the GuardedInvoker: either a panic
// (Panic and Stack set) or an error returned by the callback (Err set).
type CallbackError struct {
	Source CallbackSource
	Name   string
	Panic  any
	Stack  []byte
	Err    error
}

func (e *CallbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s callback %s failed: %v", e.Source, e.Name, e.Err)
	}
	return fmt.Sprintf("%s callback %s panicked: %v", e.Source, e.Name, e.Panic)
}

// Unwrap exposes the returned error, or the panic value when it is an error.
func (e *CallbackError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

func (e *CallbackError) Is(target error) bool {
	return target == ErrCallbackFailure
}

// Panicked reports whether the callback panicked rather than returned an error.
func (e *CallbackError) Panicked() bool {
	return e.Err == nil
}
