// Package context holds small helpers for the contexts used as abort signals.
package context

import (
	"context"
	"errors"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
)

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// IsTimedOut returns true if the context was canceled due to a timeout
func IsTimedOut(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// AbortError converts a done context into the error reported to streams it
// aborts. It returns nil while ctx is still live.
func AbortError(ctx context.Context) error {
	if !IsCanceled(ctx) {
		return nil
	}
	cause := context.Cause(ctx)
	if errors.Is(cause, context.Canceled) {
		cause = nil
	}
	return gserrors.NewAbortError(cause)
}

// OnAbort runs fn once ctx is done. The returned stop function detaches fn
// and reports whether it did so before fn started.
func OnAbort(ctx context.Context, fn func(err error)) (stop func() bool) {
	if ctx == nil || ctx.Done() == nil {
		return func() bool { return true }
	}
	return context.AfterFunc(ctx, func() { fn(AbortError(ctx)) })
}
