package testutil

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrSimulated is returned by MockWriter when configured to fail.
var ErrSimulated = errors.New("simulated error")

// MockWriter is a test writer that can simulate various write conditions
// including delays, errors, and write counting.
type MockWriter struct {
	buf         bytes.Buffer
	mu          sync.Mutex
	writeDelay  time.Duration
	errorOnNth  int
	writeCount  int
	shouldError bool
	err         error
	flushes     int
	closed      bool
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements io.Writer interface with configurable behavior.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++

	if mw.writeDelay > 0 {
		time.Sleep(mw.writeDelay)
	}

	if mw.shouldError {
		return 0, mw.err
	}

	if mw.errorOnNth > 0 && mw.writeCount == mw.errorOnNth {
		return 0, ErrSimulated
	}

	return mw.buf.Write(p)
}

// Flush counts flush calls.
func (mw *MockWriter) Flush() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.flushes++
	return nil
}

// Close marks the writer closed.
func (mw *MockWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.closed = true
	return nil
}

// String returns the current buffer contents.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Len returns the current buffer length.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// Flushes returns the number of Flush calls.
func (mw *MockWriter) Flushes() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.flushes
}

// IsClosed reports whether Close was called.
func (mw *MockWriter) IsClosed() bool {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.closed
}

// SetWriteDelay configures a delay for each write operation.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writeDelay = delay
}

// SetErrorOnNth configures the writer to error on the nth write.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.errorOnNth = n
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shouldError = true
	mw.err = err
}
