package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
)

// PullResult reports the outcome of one pull. N counts the bytes written
// into the buffer handed to the source. A source that owns its data may set
// View instead, in which case the buffer is left untouched.
type PullResult struct {
	N    int
	View []byte
	Done bool
}

// Source is a native byte source read by a NativeReadable.
//
// Start and PullInto run off the loop and may block. At most one call is
// outstanding at a time. Cancel is called once, on the loop, when the
// stream is destroyed; it must not block.
type Source interface {
	// Start prepares the source with the initial size hint. A result above 1
	// caps the hint; 0 keeps it.
	Start(ctx context.Context, hint int) (int, error)

	// PullInto fills buf.
	PullInto(ctx context.Context, buf []byte) (PullResult, error)

	// Cancel releases the source. reason is the destroy error, if any.
	Cancel(reason error) error
}

// SyncPuller is implemented by sources that never block. Their pulls run
// inline on the loop instead of being spawned.
type SyncPuller interface {
	PullSync(buf []byte) (PullResult, error)
}

// Drainer is implemented by sources holding data read before Start. The
// data becomes the first chunk of the stream.
type Drainer interface {
	DrainPrefetched() []byte
}

// RefUpdater is implemented by sources and sinks whose handle can keep an
// outside resource busy. It is told whenever the stream starts or stops
// keeping the loop alive.
type RefUpdater interface {
	UpdateRef(ref bool)
}

// ReaderSource reads from an io.Reader. A reader that is also an io.Closer
// is closed on Cancel, and a *bufio.Reader hands over its buffered bytes on
// start.
type ReaderSource struct {
	r io.Reader
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Start(context.Context, int) (int, error) {
	return 0, nil
}

func (s *ReaderSource) PullInto(_ context.Context, buf []byte) (PullResult, error) {
	n, err := s.r.Read(buf)
	switch {
	case errors.Is(err, io.EOF):
		return PullResult{N: n, Done: true}, nil
	case err != nil:
		return PullResult{N: n}, err
	}
	return PullResult{N: n}, nil
}

func (s *ReaderSource) DrainPrefetched() []byte {
	br, ok := s.r.(*bufio.Reader)
	if !ok || br.Buffered() == 0 {
		return nil
	}
	n := br.Buffered()
	out := make([]byte, n)
	_, _ = io.ReadFull(br, out)
	return out
}

func (s *ReaderSource) Cancel(error) error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// BytesSource serves a byte slice without blocking.
type BytesSource struct {
	data []byte
	off  int
}

// NewBytesSource serves data. The slice is not copied.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

func (s *BytesSource) Start(context.Context, int) (int, error) {
	return len(s.data) - s.off, nil
}

func (s *BytesSource) PullInto(_ context.Context, buf []byte) (PullResult, error) {
	return s.PullSync(buf)
}

func (s *BytesSource) PullSync(buf []byte) (PullResult, error) {
	n := copy(buf, s.data[s.off:])
	s.off += n
	return PullResult{N: n, Done: s.off == len(s.data)}, nil
}

func (s *BytesSource) Cancel(error) error {
	s.off = len(s.data)
	return nil
}

// FileSource reads a file opened on Start.
type FileSource struct {
	path string
	f    *os.File
}

// NewFileSource reads the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Start opens the file and caps the hint to its size.
func (s *FileSource) Start(context.Context, int) (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	s.f = f
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return 0, nil
	}
	return int(info.Size()), nil
}

func (s *FileSource) PullInto(ctx context.Context, buf []byte) (PullResult, error) {
	return NewReaderSource(s.f).PullInto(ctx, buf)
}

func (s *FileSource) Cancel(error) error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}
