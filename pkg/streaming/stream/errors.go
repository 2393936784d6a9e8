package stream

import (
	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// Errors reported by streams. Each carries a stable code, see errors.CodeOf.
var (
	ErrInvalidArgType       = gserrors.New(gserrors.CodeInvalidArgType, "invalid chunk type: expected []byte or string")
	ErrOutOfRange           = gserrors.New(gserrors.CodeOutOfRange, "size exceeds the maximum high-water mark")
	ErrMethodNotImplemented = gserrors.New(gserrors.CodeMethodNotImplemented, "method not implemented")
	ErrMissingArgs          = gserrors.New(gserrors.CodeMissingArgs, "missing arguments")
	ErrMultipleCallback     = gserrors.New(gserrors.CodeMultipleCallback, "callback called multiple times")
	ErrAlreadyFinished      = gserrors.New(gserrors.CodeStreamAlreadyFinished, "cannot call end after a stream was finished")
	ErrCannotPipe           = gserrors.New(gserrors.CodeStreamCannotPipe, "cannot pipe, not readable")
	ErrDestroyed            = gserrors.New(gserrors.CodeStreamDestroyed, "cannot call write after a stream was destroyed")
	ErrNullValues           = gserrors.New(gserrors.CodeStreamNullValues, "may not write null values to stream")
	ErrPrematureClose       = gserrors.New(gserrors.CodeStreamPrematureClose, "premature close")
	ErrPushAfterEOF         = gserrors.New(gserrors.CodeStreamPushAfterEOF, "stream.push() after EOF")
	ErrUnshiftAfterEnd      = gserrors.New(gserrors.CodeStreamUnshiftAfterEnd, "stream.unshift() after end event")
	ErrWriteAfterEnd        = gserrors.New(gserrors.CodeStreamWriteAfterEnd, "write after end")
	ErrUnknownEncoding      = gserrors.New(gserrors.CodeUnknownEncoding, "unknown encoding")
	ErrHookPanicked         = gserrors.New(gserrors.CodeStreamHookPanicked, "stream hook panicked")
)

// IsPrematureClose reports whether err is, or wraps, ErrPrematureClose.
func IsPrematureClose(err error) bool {
	return gserrors.CodeOf(err) == gserrors.CodeStreamPrematureClose
}
