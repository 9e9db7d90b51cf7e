package queue

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors.
type Code string

const (
	// CodeDestroyed indicates an operation on a destroyed queue or store.
	CodeDestroyed Code = "DESTROYED"

	// CodeNoTarget indicates a request was invoked with nothing attached.
	CodeNoTarget Code = "NO_TARGET"

	// CodeRejected indicates a guard returned falsy before the handler ran.
	CodeRejected Code = "REJECTED"

	// CodeCancelled indicates the task was aborted explicitly
	// (Abort/Detach/Destroy) or by another task's Cancel list.
	CodeCancelled Code = "CANCELLED"

	// CodeSuperseded indicates a later task under the same key replaced
	// this one before it settled.
	CodeSuperseded Code = "SUPERSEDED"

	// CodeHandler indicates the handler itself returned an error.
	CodeHandler Code = "HANDLER_ERROR"
)

// Error is the structured error every task rejection carries.
//
// Task and Key identify the affected task; Err holds the underlying cause
// when there is one (handler errors, guard errors).
type Error struct {
	Code    Code
	Task    string
	Key     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Task != "" {
		return fmt.Sprintf("%s: %s (task=%s, key=%s)", e.Code, msg, e.Task, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the error code from an error chain.
// Returns "" for errors that did not originate in the engine.
func CodeOf(err error) Code {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsCancelled reports whether the error is a cancellation, whether from
// an explicit abort or from supersession by a later task.
func IsCancelled(err error) bool {
	switch CodeOf(err) {
	case CodeCancelled, CodeSuperseded:
		return true
	}
	return false
}

// IsRejected reports whether a guard rejected the task.
func IsRejected(err error) bool {
	return CodeOf(err) == CodeRejected
}

func newError(code Code, task, key, message string, cause error) *Error {
	return &Error{Code: code, Task: task, Key: key, Message: message, Err: cause}
}
