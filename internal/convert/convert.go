// Package convert runs a 6D6 container through the frame decoder into one
// record writer per channel.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/samcharles93/sixd6/internal/frame"
	"github.com/samcharles93/sixd6/internal/logger"
	"github.com/samcharles93/sixd6/internal/skew"
	"github.com/samcharles93/sixd6/internal/writer"
	"github.com/samcharles93/sixd6/pkg/sixd6"
)

// MaxStationLength is the longest station code a record can carry.
const MaxStationLength = 5

// ErrStation reports a missing or overlong station code.
var ErrStation = errors.New("station code must have 1 to 5 characters")

// Options configures a conversion.
type Options struct {
	Station  string
	Location string
	Network  string
	// Template defaults to writer.DefaultTemplate.
	Template *writer.Template
	// Cut is the output split period; zero disables splitting.
	Cut           time.Duration
	AnchorSpacing int64
	// Parallel runs every channel's writer on its own goroutine.
	Parallel bool

	// Progress is called at most every ProgressInterval and once at the
	// end.
	Progress         func(Progress)
	ProgressInterval time.Duration

	Create func(path string) (io.WriteCloser, error)
	Logger logger.Logger
}

// Progress reports how far through the container a conversion is.
type Progress struct {
	Block  uint32
	Blocks uint32
	Done   bool
}

// Percent returns the completed share in the range 0..100.
func (p Progress) Percent() int {
	if p.Done || p.Blocks == 0 {
		return 100
	}
	return int(uint64(p.Block) * 100 / uint64(p.Blocks))
}

// Bytes returns the number of bytes consumed.
func (p Progress) Bytes() int64 {
	return int64(p.Block) * sixd6.BlockSize
}

// Result summarises a finished conversion.
type Result struct {
	RunID   string
	Files   []string
	Frames  frame.Stats
	Records uint64
	Samples uint64
	HasSkew bool
	SkewPPM float64
	Elapsed time.Duration
}

// Convert decodes src and writes MiniSEED files for every channel. Writers
// are always closed, and close errors are joined with the decode error.
func Convert(ctx context.Context, src *sixd6.Source, opts Options) (res Result, err error) {
	if n := len(opts.Station); n == 0 || n > MaxStationLength {
		return Result{}, fmt.Errorf("%w: %q", ErrStation, opts.Station)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	res.RunID = uuid.NewString()
	log := opts.Logger.With("run", res.RunID)
	began := time.Now()

	if src.Skipped {
		log.Warn("start header found in block 1, block 0 skipped")
	}
	corr, err := skew.New(&src.Start, &src.End)
	if err != nil {
		return res, err
	}
	if corr.HasSkew {
		res.HasSkew, res.SkewPPM = true, corr.PPM()
		log.Info("using skew", "skew_us", corr.SkewEnd, "ppm", corr.PPM())
	}

	writers, err := newWriters(&src.Start, opts, log)
	if err != nil {
		return res, err
	}
	defer func() {
		err = errors.Join(err, closeAll(writers))
		for _, w := range writers {
			res.Files = append(res.Files, w.Files()...)
			st := w.Stats()
			res.Records += st.Records
			res.Samples += st.Samples
		}
		res.Elapsed = time.Since(began)
		if err == nil {
			log.Info("conversion finished",
				"files", len(res.Files),
				"records", res.Records,
				"samples", res.Samples,
				"took", res.Elapsed.Round(time.Millisecond))
		}
	}()

	if opts.Parallel && len(writers) > 1 {
		res.Frames, err = runParallel(ctx, src, corr, writers, opts)
	} else {
		res.Frames, err = run(ctx, src, &lockstep{corr: corr, writers: writers}, opts)
	}
	if err != nil {
		return res, err
	}
	log.Debug("frames decoded",
		"blocks", res.Frames.Blocks,
		"anchors", res.Frames.Anchors,
		"sample_groups", res.Frames.SampleGroups,
		"discarded", res.Frames.Discarded,
		"telemetry", len(res.Frames.Telemetry))
	for code, n := range res.Frames.Telemetry {
		log.Debug("ignored control frames", "code", code, "count", n)
	}
	return res, nil
}

func newWriters(h *sixd6.Header, opts Options, log logger.Logger) ([]*writer.Writer, error) {
	names := h.Channels()
	writers := make([]*writer.Writer, 0, len(names))
	for _, name := range names {
		w, err := writer.New(writer.Config{
			Template: opts.Template,
			Identity: writer.Identity{
				Station:  opts.Station,
				Location: opts.Location,
				Channel:  name,
				Network:  opts.Network,
			},
			SampleRate:    float64(h.SampleRate),
			Cut:           opts.Cut,
			AnchorSpacing: opts.AnchorSpacing,
			Create:        opts.Create,
			Logger:        log,
		})
		if err != nil {
			return nil, errors.Join(err, closeAll(writers))
		}
		writers = append(writers, w)
	}
	return writers, nil
}

func closeAll(writers []*writer.Writer) error {
	var errs []error
	for i, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("channel %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// run feeds every data block of src through a demuxer driving h.
func run(ctx context.Context, src *sixd6.Source, h frame.Handler, opts Options) (frame.Stats, error) {
	m, err := frame.NewDemuxer(int(src.Start.ChannelCount), h)
	if err != nil {
		return frame.Stats{}, err
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	report := rate.Sometimes{Interval: interval}
	progress := func(done bool) {
		if opts.Progress != nil {
			opts.Progress(Progress{Block: src.Block(), Blocks: src.Blocks(), Done: done})
		}
	}

	var block [sixd6.BlockSize]byte
	for !m.Done() {
		if err := ctx.Err(); err != nil {
			return m.Stats(), err
		}
		err := src.Next(&block)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return m.Stats(), err
		}
		if err := m.Block(&block); err != nil {
			return m.Stats(), err
		}
		report.Do(func() { progress(false) })
	}
	progress(true)
	return m.Stats(), nil
}

// lockstep drives all writers from the decoding goroutine.
type lockstep struct {
	corr    *skew.Corrector
	writers []*writer.Writer
}

func (l *lockstep) Anchor(elapsed int32, index int64) error {
	t := l.corr.At(elapsed)
	for i, w := range l.writers {
		if err := w.Anchor(t, index); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}

func (l *lockstep) Samples(values []int32) error {
	for i, w := range l.writers {
		if err := w.Push(values[i]); err != nil {
			return fmt.Errorf("channel %d: %w", i, err)
		}
	}
	return nil
}
