package xpusim

import (
	"errors"
	"fmt"
)

// Code is the error taxonomy from the simulator's error handling design:
// four kinds, not types. Configuration and Usage errors are fatal and
// surface immediately; Closed is a normal termination signal recovered
// locally by the context that observes it; Arithmetic marks a shape
// mismatch on a channel payload.
type Code string

const (
	// CodeConfiguration covers a channel missing an endpoint, an invalid
	// divisibility precondition, or a nonsquare mesh. Fatal at init.
	CodeConfiguration Code = "configuration"
	// CodeClosed is the normal termination signal propagated through the
	// pipeline as each context returns in turn.
	CodeClosed Code = "closed"
	// CodeUsage covers a double Run, an unattached endpoint, or producer
	// reuse. Aborts the simulation with a descriptive message.
	CodeUsage Code = "usage"
	// CodeArithmetic marks a tile receiving a payload whose shape does not
	// match link_cap. Aborts.
	CodeArithmetic Code = "arithmetic"
)

// Error is the structured error the root package returns: Op names the
// failing action (RunScenario uses "scenario.run"), Code is one of the four
// taxonomy kinds above, and Inner wraps whatever underlying error (if any)
// triggered it. The internal packages return plain errors, which
// RunScenario wraps in an Error.
type Error struct {
	Op    string
	Code  Code
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Inner != nil {
		msg = e.Inner.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("xpusim: %s: %s (%s)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("xpusim: %s (%s)", msg, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is reports whether target is an *Error with the same Code, or the
// sentinel ErrClosed when e.Code is CodeClosed.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	if target == ErrClosed {
		return e.Code == CodeClosed
	}
	return false
}

// ErrClosed is the sentinel a context compares against after a dequeue
// fails with a closed-and-drained channel.
var ErrClosed = errors.New("xpusim: closed")

// NewError builds a structured Error with the given op, code, and message.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps an existing error under the given op and code.
func WrapError(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Inner: inner}
}

// IsCode reports whether err is an *Error (anywhere in its chain) carrying
// the given Code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
