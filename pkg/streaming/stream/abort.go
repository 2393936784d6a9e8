package stream

import "context"

// AddAbortSignal destroys s with an AbortError once ctx is done. It returns s.
func AddAbortSignal[S Stream](ctx context.Context, s S) S {
	s.base().armAbort(ctx)
	return s
}
