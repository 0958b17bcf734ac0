package entry

import (
	"context"
	"fmt"
	"io"
	"runtime"
)

// fragmentJob is one unit of the parallel write pipeline: a fragment read
// from the source at a known offset, sealed concurrently by a worker, and
// later written to the archive strictly in offset order. Modeled on the
// teacher's feeder+workerPool+ordered-job-channel design for chunked S3
// object encryption, generalized from fixed-size S3 object chunks to
// archive fragments.
type fragmentJob struct {
	offset int64
	length int64
	sealed []byte
	err    error
	done   chan struct{}
}

// writeFragments reads src in fragmentSize()-sized pieces, seals each
// concurrently on a bounded worker pool, and writes the resulting DATA/BLK
// children to w strictly in offset order — fragments must be written in
// non-decreasing offset order (spec §4.D step 3, §5 "fragments are written
// in non-decreasing offset order"), but sealing (delta/compress/encrypt)
// is independent per fragment and safe to parallelize.
func writeFragments(ctx context.Context, w *Writer, src io.Reader, isAborted func() bool) error {
	concurrency := runtime.NumCPU()
	if concurrency < 2 {
		concurrency = 2
	}
	fragmentSize := w.transform.fragmentSize()

	pending := make(chan *fragmentJob, concurrency*2)
	workers := make(chan struct{}, concurrency)

	go feedFragments(ctx, w.transform, src, fragmentSize, isAborted, pending, workers)

	for job := range pending {
		select {
		case <-job.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if job.err != nil {
			return fmt.Errorf("entry: fragment at offset %d: %w", job.offset, job.err)
		}
		if err := w.writeSealedFragment(uint64(job.offset), uint64(job.length), job.sealed); err != nil {
			return err
		}
	}
	return nil
}

func feedFragments(ctx context.Context, t Transform, src io.Reader, fragmentSize int, isAborted func() bool, pending chan<- *fragmentJob, workers chan struct{}) {
	defer close(pending)

	offset := int64(0)
	for {
		if isAborted != nil && isAborted() {
			return
		}
		buf := make([]byte, fragmentSize)
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			job := &fragmentJob{offset: offset, length: int64(n), done: make(chan struct{})}
			offset += int64(n)

			select {
			case pending <- job:
			case <-ctx.Done():
				return
			}
			select {
			case workers <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(job *fragmentJob, plain []byte) {
				defer func() { <-workers }()
				defer close(job.done)
				job.sealed, job.err = sealFragment(t, plain)
			}(job, buf[:n])
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return
		}
		if readErr != nil {
			job := &fragmentJob{err: readErr, done: make(chan struct{})}
			close(job.done)
			select {
			case pending <- job:
			case <-ctx.Done():
			}
			return
		}
	}
}
