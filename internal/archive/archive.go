// Package archive makes verbatim copies of 6D6 recording media.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/samcharles93/sixd6/pkg/sixd6"
)

// ChunkSize is the copy buffer size.
const ChunkSize = 128 << 10

// Options configures Copy.
type Options struct {
	// Progress is called at most every ProgressInterval and once at the
	// end.
	Progress         func(Progress)
	ProgressInterval time.Duration
}

// Progress reports copied and total bytes.
type Progress struct {
	Bytes int64
	Total int64
}

// Percent returns the completed share in the range 0..100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 100
	}
	return int(p.Bytes * 100 / p.Total)
}

// Result describes a finished copy.
type Result struct {
	Start   sixd6.Header
	End     sixd6.Header
	Skipped bool
	Bytes   int64
}

// Copy validates the headers at the start of src and copies the recording,
// from the start header up to the end header's block count, to dst. When
// block 0 does not hold a header the copy starts at block 1.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, opts Options) (Result, error) {
	buf := make([]byte, ChunkSize)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("read: %w", err)
	}
	head := buf[:n]

	var res Result
	offset := 0
	if res.Start, res.End, err = headers(head); err != nil {
		if len(head) < 3*sixd6.BlockSize {
			return Result{}, fmt.Errorf("%w: %w", sixd6.ErrInvalidContainer, err)
		}
		if res.Start, res.End, err = headers(head[sixd6.BlockSize:]); err != nil {
			return Result{}, fmt.Errorf("%w: %w", sixd6.ErrInvalidContainer, err)
		}
		offset, res.Skipped = sixd6.BlockSize, true
	}
	head = head[offset:]

	total := res.End.Size()
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	report := rate.Sometimes{Interval: interval}
	progress := func() {
		if opts.Progress != nil {
			opts.Progress(Progress{Bytes: res.Bytes, Total: total})
		}
	}

	first := head[:min(int64(len(head)), total)]
	if _, err := dst.Write(first); err != nil {
		return res, fmt.Errorf("write: %w", err)
	}
	res.Bytes = int64(len(first))

	for res.Bytes < total {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		chunk := buf[:min(total-res.Bytes, ChunkSize)]
		if _, err := io.ReadFull(src, chunk); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return res, fmt.Errorf("read at byte %d: %w", res.Bytes, err)
		}
		if _, err := dst.Write(chunk); err != nil {
			return res, fmt.Errorf("write at byte %d: %w", res.Bytes, err)
		}
		res.Bytes += int64(len(chunk))
		report.Do(progress)
	}
	progress()
	return res, nil
}

func headers(b []byte) (sixd6.Header, sixd6.Header, error) {
	if len(b) < 2*sixd6.BlockSize {
		return sixd6.Header{}, sixd6.Header{}, fmt.Errorf("short read of %d bytes", len(b))
	}
	start, err := sixd6.DecodeHeader(b[:sixd6.BlockSize])
	if err != nil {
		return sixd6.Header{}, sixd6.Header{}, fmt.Errorf("start header: %w", err)
	}
	end, err := sixd6.DecodeHeader(b[sixd6.BlockSize : 2*sixd6.BlockSize])
	if err != nil {
		return sixd6.Header{}, sixd6.Header{}, fmt.Errorf("end header: %w", err)
	}
	return start, end, nil
}
