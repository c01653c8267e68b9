// Package writer turns one channel's sample stream plus periodic time
// anchors into MiniSEED files split at UTC cut boundaries.
package writer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/samcharles93/sixd6/internal/logger"
	"github.com/samcharles93/sixd6/internal/samplebuf"
	"github.com/samcharles93/sixd6/pkg/mseed"
	"github.com/samcharles93/sixd6/pkg/tai"
)

const (
	// DefaultCut splits output at every UTC midnight.
	DefaultCut = 24 * time.Hour
	// DefaultAnchorSpacing is the minimum number of samples between two
	// anchors that are applied; closer anchors are accepted and ignored.
	DefaultAnchorSpacing = 20 * 1008

	outputBufferSize = 64 << 10
)

// Record is the output record encoder.
type Record interface {
	Reset(seq int)
	SetIdentity(station, location, channel, network string)
	SetSampleRate(rate float64)
	SetStartTime(d tai.Date)
	SetLeapSecond(leap bool)
	Push(v int32) bool
	Len() int
	Bytes() []byte
}

// Config configures a Writer.
type Config struct {
	Template   *Template
	Identity   Identity
	SampleRate float64
	// Cut is the split period aligned to UTC. Zero disables splitting.
	Cut time.Duration
	// AnchorSpacing overrides DefaultAnchorSpacing when positive.
	AnchorSpacing int64

	// NewRecord and Create default to MiniSEED records and files created
	// below their directory.
	NewRecord func() Record
	Create    func(path string) (io.WriteCloser, error)
	Logger    logger.Logger
}

// Stats counts a writer's output.
type Stats struct {
	Files   int
	Records uint64
	Samples uint64
}

// Writer is the per-channel record writer. It is not safe for concurrent
// use.
type Writer struct {
	cfg     Config
	cut     int64
	spacing int64
	log     logger.Logger

	buf      *samplebuf.Buffer
	anchored bool
	closed   bool
	// err is the first output failure; the writer is unusable after it.
	err error
	// Last applied anchor and its interpolation rate in µs per sample.
	lastT   tai.Time
	lastIdx int64
	rate    float64
	// Last accepted anchor, applied or not.
	prevT   tai.Time
	prevIdx int64
	// Indices of samples that start a new file but have not arrived yet.
	pending []int64

	rec      Record
	recSeq   int
	recStart tai.Time
	recLast  tai.Time

	out   io.WriteCloser
	bw    *bufio.Writer
	files []string
	stats Stats
}

// New returns a writer. No file is created before the first anchor.
func New(cfg Config) (*Writer, error) {
	if cfg.Template == nil {
		t, err := ParseTemplate(DefaultTemplate)
		if err != nil {
			return nil, err
		}
		cfg.Template = t
	}
	if cfg.Cut < 0 {
		return nil, fmt.Errorf("negative cut period %s", cfg.Cut)
	}
	if cfg.Cut != 0 && cfg.Cut < time.Microsecond {
		return nil, fmt.Errorf("cut period %s below one microsecond", cfg.Cut)
	}
	if cfg.NewRecord == nil {
		cfg.NewRecord = func() Record { return mseed.New(1) }
	}
	if cfg.Create == nil {
		cfg.Create = CreateFile
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	spacing := cfg.AnchorSpacing
	if spacing <= 0 {
		spacing = DefaultAnchorSpacing
	}
	return &Writer{
		cfg:     cfg,
		cut:     cfg.Cut.Microseconds(),
		spacing: spacing,
		log:     cfg.Logger.With("channel", cfg.Identity.Channel),
		buf:     samplebuf.New(),
		rec:     cfg.NewRecord(),
	}, nil
}

// CreateFile creates path, making missing parent directories.
func CreateFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// Push buffers a sample until an anchor covers it.
func (w *Writer) Push(v int32) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	if !w.anchored {
		return fmt.Errorf("%w: sample before first anchor", ErrProtocol)
	}
	w.buf.Push(v)
	return nil
}

// Anchor asserts that sample idx was taken at t. The first anchor must have
// index 0 and opens the first file. Later anchors must strictly increase in
// both time and index. An anchor closer than the anchor spacing to the last
// applied one is remembered but not applied. Applying an anchor writes every
// buffered sample up to idx with linearly interpolated times.
func (w *Writer) Anchor(t tai.Time, idx int64) error {
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	if !w.anchored {
		if idx != 0 {
			return fmt.Errorf("%w: first anchor at index %d", ErrProtocol, idx)
		}
		w.anchored = true
		w.lastT, w.lastIdx = t, 0
		w.prevT, w.prevIdx = t, 0
		return w.fail(w.openFile(t))
	}
	if idx <= w.prevIdx || t <= w.prevT {
		return fmt.Errorf("%w: anchor (%v, %d) does not follow (%v, %d)", ErrProtocol, t, idx, w.prevT, w.prevIdx)
	}
	w.prevT, w.prevIdx = t, idx
	if idx-w.lastIdx < w.spacing {
		return nil
	}
	return w.fail(w.apply(t, idx))
}

func (w *Writer) fail(err error) error {
	if err != nil && w.err == nil {
		w.err = err
	}
	return err
}

func (w *Writer) apply(t tai.Time, idx int64) error {
	a := float64(t-w.lastT) / float64(idx-w.lastIdx)
	if err := w.drain(t, idx, a); err != nil {
		return err
	}
	w.lastT, w.lastIdx, w.rate = t, idx, a
	return nil
}

// drain writes buffered samples up to idx, which is taken at t, using a
// microseconds per sample from the last applied anchor.
func (w *Writer) drain(t tai.Time, idx int64, a float64) error {
	w.pending = append(w.pending, w.splits(t, idx, a)...)
	for w.buf.Len() > 0 && w.buf.Head() <= idx {
		seq := w.buf.Head()
		ts := w.interpolate(seq, a)
		if len(w.pending) > 0 && seq >= w.pending[0] {
			for len(w.pending) > 0 && seq >= w.pending[0] {
				w.pending = w.pending[1:]
			}
			if err := w.openFile(ts); err != nil {
				return err
			}
		}
		if err := w.write(w.buf.Pop(), ts); err != nil {
			return err
		}
	}
	return nil
}

// finish writes what is still buffered: up to the last unapplied anchor
// first, then the remainder extrapolated at the last applied rate, or the
// nominal sample rate when only the first anchor was seen.
func (w *Writer) finish() error {
	if !w.anchored {
		return nil
	}
	if w.prevIdx > w.lastIdx {
		if err := w.apply(w.prevT, w.prevIdx); err != nil {
			return err
		}
	}
	if w.buf.Len() == 0 {
		return nil
	}
	a := w.rate
	if a == 0 && w.cfg.SampleRate > 0 {
		a = float64(tai.Second) / w.cfg.SampleRate
	}
	if a <= 0 {
		w.log.Warn("dropping samples without a time base", "count", w.buf.Len())
		return nil
	}
	end := w.buf.Head() + int64(w.buf.Len()) - 1
	return w.drain(w.interpolate(end, a), end, a)
}

func (w *Writer) interpolate(seq int64, a float64) tai.Time {
	return w.lastT + tai.Time(math.Round(float64(seq-w.lastIdx)*a))
}

// splits returns, for each cut boundary in (lastT, t], the first sample
// index whose interpolated time is at or after the boundary.
func (w *Writer) splits(t tai.Time, idx int64, a float64) []int64 {
	if w.cut == 0 {
		return nil
	}
	from := w.bucket(w.lastT)
	to := w.bucket(t)
	var out []int64
	for b := from + 1; b <= to; b++ {
		boundary := tai.FromUTC(b * w.cut)
		s := w.lastIdx + int64(math.Ceil(float64(boundary-w.lastT)/a))
		s = min(max(s, w.lastIdx+1), idx)
		for s > w.lastIdx+1 && w.interpolate(s-1, a) >= boundary {
			s--
		}
		for s < idx && w.interpolate(s, a) < boundary {
			s++
		}
		out = append(out, s)
	}
	return out
}

// bucket returns the number of the cut period holding t. An instant inside a
// leap second belongs to the day the leap second ends.
func (w *Writer) bucket(t tai.Time) int64 {
	b := tai.FloorDiv(t.UTC(), w.cut)
	if tai.FromUTC(b*w.cut) > t {
		b--
	}
	return b
}

func (w *Writer) write(v int32, ts tai.Time) error {
	for !w.rec.Push(v) {
		if err := w.flushRecord(); err != nil {
			return err
		}
		w.startRecord(ts)
	}
	w.recLast = ts
	w.stats.Samples++
	return nil
}

func (w *Writer) startRecord(ts tai.Time) {
	w.recSeq++
	w.rec.Reset(w.recSeq)
	id := w.cfg.Identity
	w.rec.SetIdentity(id.Station, id.Location, id.Channel, id.Network)
	w.rec.SetSampleRate(w.cfg.SampleRate)
	w.rec.SetStartTime(ts.Date())
	w.recStart, w.recLast = ts, ts
}

func (w *Writer) flushRecord() error {
	if w.rec.Len() == 0 {
		return nil
	}
	w.rec.SetLeapSecond(tai.LeapOffset(w.recStart) != tai.LeapOffset(w.recLast))
	if _, err := w.bw.Write(w.rec.Bytes()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.stats.Records++
	// A flushed record is empty until the next startRecord.
	w.rec.Reset(w.recSeq)
	return nil
}

func (w *Writer) openFile(ts tai.Time) error {
	if err := w.closeFile(); err != nil {
		return err
	}
	w.recSeq = 0
	w.startRecord(ts)

	path := w.cfg.Template.Expand(ts.Date(), w.cfg.Identity)
	out, err := w.cfg.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w.out = out
	if w.bw == nil {
		w.bw = bufio.NewWriterSize(out, outputBufferSize)
	} else {
		w.bw.Reset(out)
	}
	w.files = append(w.files, path)
	w.stats.Files++
	w.log.Info("created file", "path", path, "start", ts)
	return nil
}

func (w *Writer) closeFile() error {
	if w.out == nil {
		return nil
	}
	err := w.flushRecord()
	if ferr := w.bw.Flush(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("flush: %w", ferr))
	}
	if cerr := w.out.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", cerr))
	}
	w.out = nil
	return err
}

// Close writes the buffered tail, flushes the pending record and closes the
// current file. Later calls to Push and Anchor fail with ErrClosed; Close
// itself may be called again.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.err == nil {
		err = w.finish()
	}
	return errors.Join(err, w.closeFile())
}

// Files returns the paths of every file created so far.
func (w *Writer) Files() []string {
	return w.files
}

// Stats returns the output counters.
func (w *Writer) Stats() Stats {
	return w.stats
}

// Pending returns the number of buffered samples awaiting an anchor.
func (w *Writer) Pending() int {
	return w.buf.Len()
}
