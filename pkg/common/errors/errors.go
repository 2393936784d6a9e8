package errors

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Common error types used across the gostream library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrAlreadyStarted indicates that a single-use operation was started twice
	ErrAlreadyStarted = errors.New("operation already started")

	// ErrAborted is matched by every AbortError
	ErrAborted = errors.New("the operation was aborted")
)

// Code is a stable, machine readable error identifier.
type Code string

// Error codes carried by stream errors.
const (
	CodeInvalidArgType           Code = "ERR_INVALID_ARG_TYPE"
	CodeInvalidArgValue          Code = "ERR_INVALID_ARG_VALUE"
	CodeOutOfRange               Code = "ERR_OUT_OF_RANGE"
	CodeMethodNotImplemented     Code = "ERR_METHOD_NOT_IMPLEMENTED"
	CodeMissingArgs              Code = "ERR_MISSING_ARGS"
	CodeMultipleCallback         Code = "ERR_MULTIPLE_CALLBACK"
	CodeStreamAlreadyFinished    Code = "ERR_STREAM_ALREADY_FINISHED"
	CodeStreamCannotPipe         Code = "ERR_STREAM_CANNOT_PIPE"
	CodeStreamDestroyed          Code = "ERR_STREAM_DESTROYED"
	CodeStreamNullValues         Code = "ERR_STREAM_NULL_VALUES"
	CodeStreamPrematureClose     Code = "ERR_STREAM_PREMATURE_CLOSE"
	CodeStreamPushAfterEOF       Code = "ERR_STREAM_PUSH_AFTER_EOF"
	CodeStreamUnshiftAfterEnd    Code = "ERR_STREAM_UNSHIFT_AFTER_END_EVENT"
	CodeStreamWriteAfterEnd      Code = "ERR_STREAM_WRITE_AFTER_END"
	CodeUnknownEncoding          Code = "ERR_UNKNOWN_ENCODING"
	CodeAbort                    Code = "ABORT_ERR"
	CodeTransformWithLengthZero  Code = "ERR_TRANSFORM_WITH_LENGTH_0"
	CodeTransformAlreadyFlushing Code = "ERR_TRANSFORM_ALREADY_TRANSFORMING"
	CodeStreamHookPanicked       Code = "ERR_STREAM_HOOK_PANICKED"
)

// CodedError is a sentinel error identified by its Code.
type CodedError struct {
	Code Code
	Msg  string
}

// New returns a CodedError with the given code and message.
func New(code Code, msg string) *CodedError {
	return &CodedError{Code: code, Msg: msg}
}

func (e *CodedError) Error() string {
	return e.Msg
}

// CodeOf returns the code of the first CodedError or AbortError in err's chain.
func CodeOf(err error) Code {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var ae *AbortError
	if errors.As(err, &ae) {
		return CodeAbort
	}
	return ""
}

// AbortError reports that an operation was canceled through an abort signal.
type AbortError struct {
	Cause error
}

// NewAbortError wraps the cancellation cause, which may be nil.
func NewAbortError(cause error) *AbortError {
	return &AbortError{Cause: cause}
}

func (e *AbortError) Error() string {
	if e.Cause == nil {
		return ErrAborted.Error()
	}
	return fmt.Sprintf("%s: %v", ErrAborted.Error(), e.Cause)
}

func (e *AbortError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAborted}
	}
	return []error{ErrAborted, e.Cause}
}

// IsAbort reports whether err is, or wraps, an AbortError.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}

// Aggregate combines two errors without dropping either.
// Identical errors are not duplicated.
func Aggregate(a, b error) error {
	switch {
	case a == nil:
		return b
	case b == nil || a == b:
		return a
	}
	for _, e := range multierr.Errors(a) {
		if e == b {
			return a
		}
	}
	return multierr.Append(a, b)
}

// ValidationError describes an invalid configuration field.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap lets errors.Is match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError records which operation of which module failed.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError without context.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches extra detail and returns the same error.
func (e *OperationError) WithContext(ctx string) *OperationError {
	e.Context = ctx
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsTemporary returns true if the error indicates a temporary condition
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCapacityExceeded)
}
