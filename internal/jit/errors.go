package jit

import (
	"errors"
	"fmt"
)

var (
	// ErrInterrupted is returned by StubHost.SendCommand after Interrupt.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrEmptyCommand is returned when asked to send an empty command.
	ErrEmptyCommand = errors.New("command should not be empty")
)

// TransportError is the only error the loop returns: the host failed to
// deliver a command or to prepare a region. The session is unusable
// afterwards and nothing is retried.
type TransportError struct {
	// Command is the command (or capability) that failed
	Command string
	// Underlying error
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed on %q: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
