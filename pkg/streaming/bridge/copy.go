package bridge

import (
	"context"
	"io"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// CopyJob pairs a source with the sink it is copied to.
type CopyJob struct {
	Source Source
	Sink   Sink
}

// Copy moves every byte of src into dst without an event loop, using
// buffers of hint bytes. dst is closed once src is done. On failure the
// source is canceled and an Aborter sink is aborted. It returns the number
// of bytes copied.
func Copy(ctx context.Context, src Source, dst Sink, hint int) (int64, error) {
	if hint <= 0 {
		hint = DefaultSizeHint
	}
	adjusted, err := src.Start(ctx, hint)
	if err != nil {
		return 0, abortCopy(src, dst, err)
	}
	if adjusted > 1 {
		hint = min(hint, adjusted)
	}

	var total int64
	if d, ok := src.(Drainer); ok {
		if p := d.DrainPrefetched(); len(p) > 0 {
			if err := writeAll(ctx, dst, p); err != nil {
				return total, abortCopy(src, dst, err)
			}
			total += int64(len(p))
		}
	}

	buf := make([]byte, max(hint, MinBufferSize))
	for {
		if err := ctx.Err(); err != nil {
			return total, abortCopy(src, dst, err)
		}
		res, err := src.PullInto(ctx, buf)
		if err != nil {
			return total, abortCopy(src, dst, err)
		}
		chunk := buf[:res.N]
		if res.View != nil {
			chunk = res.View
		}
		if err := writeAll(ctx, dst, chunk); err != nil {
			return total, abortCopy(src, dst, err)
		}
		total += int64(len(chunk))
		if res.Done {
			break
		}
	}

	return total, multierr.Append(dst.Close(ctx), src.Cancel(nil))
}

// CopyAll runs jobs concurrently, at most limit at a time (no limit when
// limit <= 0). The first failure cancels the remaining copies. The returned
// slice holds the bytes copied per job.
func CopyAll(ctx context.Context, jobs []CopyJob, limit int) ([]int64, error) {
	counts := make([]int64, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			n, err := Copy(ctx, job.Source, job.Sink, 0)
			counts[i] = n
			return err
		})
	}
	return counts, g.Wait()
}

func writeAll(ctx context.Context, dst Sink, p []byte) error {
	for len(p) > 0 {
		n, err := dst.Write(ctx, p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

func abortCopy(src Source, dst Sink, err error) error {
	err = multierr.Append(err, src.Cancel(err))
	if a, ok := dst.(Aborter); ok {
		err = multierr.Append(err, a.Abort(err))
	}
	return err
}
