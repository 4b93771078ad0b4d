package errors

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation is the sentinel wrapped by UnsupportedOperationError.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// UnsupportedOperationError reports a call that the receiver cannot serve in its current form,
// e.g. asking a decoded flow step for the input file it was reported against.
type UnsupportedOperationError struct {
	Operation string
	Reason    string
}

// Error implements the error interface for UnsupportedOperationError.
func (e *UnsupportedOperationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("operation %q is not supported", e.Operation)
	}
	return fmt.Sprintf("operation %q is not supported: %s", e.Operation, e.Reason)
}

// Unwrap makes errors.Is(err, ErrUnsupportedOperation) hold.
func (e *UnsupportedOperationError) Unwrap() error {
	return ErrUnsupportedOperation
}

// NewUnsupportedOperationError constructs an UnsupportedOperationError.
func NewUnsupportedOperationError(operation, reason string) error {
	return &UnsupportedOperationError{
		Operation: operation,
		Reason:    reason,
	}
}

// CommandError represents an error that occurred during command execution, storing relevant results.
type CommandError struct {
	ExitCode    int
	CommonError string
	Args        interface{}
	Result      interface{}
	cause       error
}

// Error implements the error interface, returning the message from the common error.
func (e *CommandError) Error() string {
	return e.CommonError
}

// Unwrap returns the underlying cause.
func (e *CommandError) Unwrap() error {
	return e.cause
}

// NewCommandError creates a new CommandError instance, encapsulating args, result, and the error message.
func NewCommandError(args interface{}, result interface{}, err error, code int) *CommandError {
	return &CommandError{
		ExitCode:    code,
		CommonError: err.Error(),
		Args:        args,
		Result:      result,
		cause:       err,
	}
}

// ExitCode extracts the exit code carried by err, 1 for any other non-nil error and 0 for nil.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return 1
}
