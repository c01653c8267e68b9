package convert

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/sixd6/internal/frame"
	"github.com/samcharles93/sixd6/internal/skew"
	"github.com/samcharles93/sixd6/internal/writer"
	"github.com/samcharles93/sixd6/pkg/sixd6"
	"github.com/samcharles93/sixd6/pkg/tai"
)

const (
	batchSize  = 4096
	queueDepth = 4
)

// op is one writer call. An op with anchor set is Anchor(t, index),
// otherwise Push(value).
type op struct {
	anchor bool
	value  int32
	index  int64
	t      tai.Time
}

// fanout batches writer calls per channel and hands them to one goroutine
// per writer. Calls for a channel keep their order.
type fanout struct {
	ctx     context.Context
	corr    *skew.Corrector
	queues  []chan []op
	batches [][]op
}

func runParallel(ctx context.Context, src *sixd6.Source, corr *skew.Corrector, writers []*writer.Writer, opts Options) (frame.Stats, error) {
	g, gctx := errgroup.WithContext(ctx)
	f := &fanout{
		ctx:     gctx,
		corr:    corr,
		queues:  make([]chan []op, len(writers)),
		batches: make([][]op, len(writers)),
	}
	for i, w := range writers {
		q := make(chan []op, queueDepth)
		f.queues[i] = q
		f.batches[i] = make([]op, 0, batchSize)
		g.Go(func() error {
			if err := drive(w, q); err != nil {
				return fmt.Errorf("channel %d: %w", i, err)
			}
			return nil
		})
	}

	stats, err := run(gctx, src, f, opts)
	if err == nil {
		err = f.flush()
	}
	for _, q := range f.queues {
		close(q)
	}
	if werr := g.Wait(); werr != nil {
		// Worker errors replace the context error they caused.
		err = werr
	}
	return stats, err
}

func drive(w *writer.Writer, q <-chan []op) error {
	for batch := range q {
		for _, o := range batch {
			var err error
			if o.anchor {
				err = w.Anchor(o.t, o.index)
			} else {
				err = w.Push(o.value)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *fanout) Anchor(elapsed int32, index int64) error {
	t := f.corr.At(elapsed)
	for i := range f.batches {
		if err := f.add(i, op{anchor: true, t: t, index: index}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanout) Samples(values []int32) error {
	for i := range f.batches {
		if err := f.add(i, op{value: values[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanout) add(i int, o op) error {
	f.batches[i] = append(f.batches[i], o)
	if len(f.batches[i]) < batchSize {
		return nil
	}
	return f.send(i)
}

func (f *fanout) send(i int) error {
	select {
	case f.queues[i] <- f.batches[i]:
	case <-f.ctx.Done():
		return f.ctx.Err()
	}
	f.batches[i] = make([]op, 0, batchSize)
	return nil
}

func (f *fanout) flush() error {
	for i := range f.batches {
		if len(f.batches[i]) == 0 {
			continue
		}
		if err := f.send(i); err != nil {
			return err
		}
	}
	return nil
}
