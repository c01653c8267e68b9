package writer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/samcharles93/sixd6/pkg/mseed"
	"github.com/samcharles93/sixd6/pkg/tai"
)

type memFile struct{ *bytes.Buffer }

func (memFile) Close() error { return nil }

// memFS records created files in creation order.
type memFS struct {
	order []string
	files map[string]*bytes.Buffer
}

func (m *memFS) create(path string) (io.WriteCloser, error) {
	if m.files == nil {
		m.files = make(map[string]*bytes.Buffer)
	}
	b := &bytes.Buffer{}
	m.files[path] = b
	m.order = append(m.order, path)
	return memFile{b}, nil
}

type record struct {
	seq     string
	year    int
	yday    int
	hour    int
	min     int
	sec     int
	usec    int
	leap    bool
	samples []int32
}

func parseRecords(t *testing.T, b []byte) []record {
	t.Helper()
	if len(b)%mseed.RecordSize != 0 {
		t.Fatalf("output is not a whole number of records: %d bytes", len(b))
	}
	var out []record
	for ; len(b) > 0; b = b[mseed.RecordSize:] {
		r := record{
			seq:  string(b[0:6]),
			year: int(binary.BigEndian.Uint16(b[20:])),
			yday: int(binary.BigEndian.Uint16(b[22:])),
			hour: int(b[24]),
			min:  int(b[25]),
			sec:  int(b[26]),
			usec: int(binary.BigEndian.Uint16(b[28:]))*100 + int(int8(b[61])),
			leap: b[36]&mseed.ActivityLeapSecond != 0,
		}
		n := int(binary.BigEndian.Uint16(b[30:]))
		for i := range n {
			r.samples = append(r.samples, int32(binary.BigEndian.Uint32(b[mseed.DataOffset+4*i:])))
		}
		out = append(out, r)
	}
	return out
}

func samplesOf(rs []record) []int32 {
	var out []int32
	for _, r := range rs {
		out = append(out, r.samples...)
	}
	return out
}

func newTestWriter(t *testing.T, fs *memFS, cut time.Duration, spacing int64) *Writer {
	t.Helper()
	w, err := New(Config{
		Template:      MustParseTemplate("%S/%y%m%d-%h%i%s-%C.mseed"),
		Identity:      Identity{Station: "ST007", Channel: "HHZ"},
		SampleRate:    100,
		Cut:           cut,
		AnchorSpacing: spacing,
		Create:        fs.create,
	})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	return w
}

func pushRange(t *testing.T, w *Writer, from, to int32) {
	t.Helper()
	for v := from; v < to; v++ {
		if err := w.Push(v); err != nil {
			t.Fatalf("push %d: %v", v, err)
		}
	}
}

func TestPushBeforeAnchor(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t, &memFS{}, 0, 1)
	if err := w.Push(1); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	if err := w.Anchor(tai.FromUTC(0), 3); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol for first anchor at 3, got %v", err)
	}
}

func TestAnchorMonotonic(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 0, 1)
	t0 := tai.FromDate(tai.Date{Year: 2023, Month: 6, Day: 1})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 200)

	if err := w.Anchor(t0+tai.Second, 0); !errors.Is(err, ErrProtocol) {
		t.Fatalf("same index: expected ErrProtocol, got %v", err)
	}
	if err := w.Anchor(t0, 100); !errors.Is(err, ErrProtocol) {
		t.Fatalf("same time: expected ErrProtocol, got %v", err)
	}
	if err := w.Anchor(t0-tai.Second, 100); !errors.Is(err, ErrProtocol) {
		t.Fatalf("earlier time: expected ErrProtocol, got %v", err)
	}
	if err := w.Anchor(t0+tai.Second, 100); err != nil {
		t.Fatalf("valid anchor: %v", err)
	}
	if err := w.Anchor(t0+2*tai.Second, 50); !errors.Is(err, ErrProtocol) {
		t.Fatalf("index regression: expected ErrProtocol, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(fs.order) != 1 {
		t.Fatalf("files: got %v", fs.order)
	}
}

func TestCutAtMidnight(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 24*time.Hour, 1)
	t0 := tai.FromDate(tai.Date{Year: 2023, Month: 6, Day: 1, Hour: 23, Min: 59, Sec: 50, Usec: 5000})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 2000)
	if err := w.Anchor(t0+20*tai.Second, 2000); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"ST007/20230601-235950-HHZ.mseed", "ST007/20230602-000000-HHZ.mseed"}
	if !slices.Equal(fs.order, want) {
		t.Fatalf("files: got %v want %v", fs.order, want)
	}
	first := parseRecords(t, fs.files[want[0]].Bytes())
	second := parseRecords(t, fs.files[want[1]].Bytes())

	// Sample k is at t0 + 10ms·k, so 23:59:59.995 is sample 999 and the
	// first sample at or after midnight is 1000.
	if got := samplesOf(first); len(got) != 1000 || got[999] != 999 {
		t.Fatalf("first file: %d samples", len(got))
	}
	if got := samplesOf(second); len(got) != 1000 || got[0] != 1000 {
		t.Fatalf("second file: %d samples, first %v", len(got), got[:1])
	}
	head := second[0]
	if head.seq != "000001" || head.yday != 153 || head.hour != 0 || head.min != 0 || head.sec != 0 || head.usec != 5000 {
		t.Fatalf("second file start: %+v", head)
	}
	for i, r := range first {
		if want := fmt.Sprintf("%06d", i+1); r.seq != want {
			t.Fatalf("record %d sequence: got %s", i, r.seq)
		}
	}
}

func TestCutOnAnchorInstant(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 24*time.Hour, 1)
	midnight := tai.FromDate(tai.Date{Year: 2023, Month: 6, Day: 2})
	if err := w.Anchor(midnight-10*tai.Second, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 1000)
	// Sample 1000 is taken exactly at midnight but only arrives after the
	// anchor naming it.
	if err := w.Anchor(midnight, 1000); err != nil {
		t.Fatalf("midnight anchor: %v", err)
	}
	pushRange(t, w, 1000, 2000)
	if err := w.Anchor(midnight+10*tai.Second, 2000); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"ST007/20230601-235950-HHZ.mseed", "ST007/20230602-000000-HHZ.mseed"}
	if !slices.Equal(fs.order, want) {
		t.Fatalf("files: got %v want %v", fs.order, want)
	}
	first := samplesOf(parseRecords(t, fs.files[want[0]].Bytes()))
	second := parseRecords(t, fs.files[want[1]].Bytes())
	if len(first) != 1000 || first[999] != 999 {
		t.Fatalf("first file: %d samples", len(first))
	}
	if got := samplesOf(second); len(got) != 1000 || got[0] != 1000 || got[999] != 1999 {
		t.Fatalf("second file: %d samples", len(got))
	}
	if head := second[0]; head.yday != 153 || head.hour != 0 || head.min != 0 || head.sec != 0 || head.usec != 0 {
		t.Fatalf("second file start: %+v", head)
	}
}

func TestCutAfterLeapSecondAnchor(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 24*time.Hour, 1)
	t0 := tai.FromDate(tai.Date{Year: 2016, Month: 12, Day: 31, Hour: 23, Min: 59, Sec: 50})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 1050)
	inLeap := tai.FromDate(tai.Date{Year: 2016, Month: 12, Day: 31, Hour: 23, Min: 59, Sec: 60, Usec: 500000})
	if inLeap-t0 != 10500*tai.Millisecond {
		t.Fatalf("leap second anchor is %v after the first", inLeap-t0)
	}
	if err := w.Anchor(inLeap, 1050); err != nil {
		t.Fatalf("leap second anchor: %v", err)
	}
	pushRange(t, w, 1050, 2000)
	if err := w.Anchor(inLeap+9500*tai.Millisecond, 2000); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{"ST007/20161231-235950-HHZ.mseed", "ST007/20170101-000000-HHZ.mseed"}
	if !slices.Equal(fs.order, want) {
		t.Fatalf("files: got %v want %v", fs.order, want)
	}
	// Midnight is 0.5 s after the leap second anchor, 50 samples later.
	first := samplesOf(parseRecords(t, fs.files[want[0]].Bytes()))
	second := parseRecords(t, fs.files[want[1]].Bytes())
	if len(first) != 1100 || first[1099] != 1099 {
		t.Fatalf("first file: %d samples", len(first))
	}
	if got := samplesOf(second); len(got) != 900 || got[0] != 1100 {
		t.Fatalf("second file: %d samples", len(got))
	}
	if head := second[0]; head.year != 2017 || head.yday != 1 || head.hour != 0 || head.sec != 0 || head.usec != 0 {
		t.Fatalf("second file start: %+v", head)
	}
}

func TestBucketOfLeapSecond(t *testing.T) {
	t.Parallel()

	w := newTestWriter(t, &memFS{}, 24*time.Hour, 1)
	inLeap := tai.FromDate(tai.Date{Year: 2016, Month: 12, Day: 31, Hour: 23, Min: 59, Sec: 60, Usec: 999999})
	before := tai.FromDate(tai.Date{Year: 2016, Month: 12, Day: 31, Hour: 23, Min: 59, Sec: 59})
	midnight := tai.FromDate(tai.Date{Year: 2017, Month: 1, Day: 1})
	if w.bucket(inLeap) != w.bucket(before) {
		t.Fatalf("leap second bucket: got %d want %d", w.bucket(inLeap), w.bucket(before))
	}
	if w.bucket(midnight) != w.bucket(before)+1 {
		t.Fatalf("midnight bucket: got %d want %d", w.bucket(midnight), w.bucket(before)+1)
	}
}

func TestSplitIndexIsFirstSampleAtBoundary(t *testing.T) {
	t.Parallel()

	midnight := tai.FromDate(tai.Date{Year: 2023, Month: 6, Day: 2})
	tests := []struct {
		name   string
		lead   tai.Time
		span   tai.Time
		count  int64
		splits int
	}{
		{"exact", 10 * tai.Second, 20 * tai.Second, 2000, 1},
		{"slow clock", 3*tai.Second + 7, 10*tai.Second + 13, 999, 1},
		{"fast clock", 1234567, 5*tai.Second - 1, 501, 1},
		{"on boundary", 0, tai.Second, 100, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := newTestWriter(t, &memFS{}, 24*time.Hour, 1)
			w.lastT = midnight - tc.lead
			a := float64(tc.span) / float64(tc.count)
			got := w.splits(w.lastT+tc.span, tc.count, a)
			if len(got) != tc.splits {
				t.Fatalf("splits: got %v", got)
			}
			for _, s := range got {
				if w.interpolate(s, a) < midnight {
					t.Fatalf("sample %d at %v is before the boundary", s, w.interpolate(s, a))
				}
				if w.interpolate(s-1, a) >= midnight {
					t.Fatalf("sample %d at %v is already past the boundary", s-1, w.interpolate(s-1, a))
				}
			}
		})
	}
}

func TestSeveralCutsBetweenAnchors(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 10*time.Second, 1)
	t0 := tai.FromDate(tai.Date{Year: 2023, Month: 6, Day: 1, Hour: 12, Sec: 5})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 3000)
	if err := w.Anchor(t0+30*tai.Second, 3000); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := []string{
		"ST007/20230601-120005-HHZ.mseed",
		"ST007/20230601-120010-HHZ.mseed",
		"ST007/20230601-120020-HHZ.mseed",
		"ST007/20230601-120030-HHZ.mseed",
	}
	if !slices.Equal(fs.order, want) {
		t.Fatalf("files: got %v want %v", fs.order, want)
	}
	var all []int32
	for i, p := range want {
		got := samplesOf(parseRecords(t, fs.files[p].Bytes()))
		if wantN := []int{500, 1000, 1000, 500}[i]; len(got) != wantN {
			t.Fatalf("%s: got %d samples want %d", p, len(got), wantN)
		}
		all = append(all, got...)
	}
	for i, v := range all {
		if v != int32(i) {
			t.Fatalf("sample %d out of order: %d", i, v)
		}
	}
	if st := w.Stats(); st.Files != 4 || st.Samples != 3000 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestLeapSecondFlag(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 0, 1)
	t0 := tai.FromDate(tai.Date{Year: 2016, Month: 12, Day: 31, Hour: 23, Min: 59, Sec: 59, Usec: 950000})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 300)
	if err := w.Anchor(t0+3*tai.Second, 300); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rs := parseRecords(t, fs.files[fs.order[0]].Bytes())
	if len(rs) != 3 {
		t.Fatalf("records: got %d want 3", len(rs))
	}
	// The first record runs from 23:59:59.95 through the leap second into
	// the new year.
	if !rs[0].leap || rs[1].leap || rs[2].leap {
		t.Fatalf("leap flags: %v %v %v", rs[0].leap, rs[1].leap, rs[2].leap)
	}
	if r := rs[0]; r.year != 2016 || r.yday != 366 || r.sec != 59 || r.usec != 950000 {
		t.Fatalf("first record start: %+v", r)
	}
	if r := rs[1]; r.year != 2017 || r.yday != 1 || r.hour != 0 || r.sec != 0 || r.usec != 70000 {
		t.Fatalf("second record start: %+v", r)
	}
}

func TestCloseFlushesPartialRecord(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 0, 1)
	t0 := tai.FromDate(tai.Date{Year: 2023, Month: 1, Day: 1})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 10)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rs := parseRecords(t, fs.files[fs.order[0]].Bytes())
	if len(rs) != 1 || !slices.Equal(rs[0].samples, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("records: %+v", rs)
	}
	if err := w.Push(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("push after close: got %v", err)
	}
	if err := w.Anchor(t0+tai.Second, 100); !errors.Is(err, ErrClosed) {
		t.Fatalf("anchor after close: got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestAnchorSpacing(t *testing.T) {
	t.Parallel()

	fs := &memFS{}
	w := newTestWriter(t, fs, 0, 100)
	t0 := tai.FromDate(tai.Date{Year: 2023, Month: 1, Day: 1})
	if err := w.Anchor(t0, 0); err != nil {
		t.Fatalf("first anchor: %v", err)
	}
	pushRange(t, w, 0, 60)
	// Too close to the first anchor to be applied.
	if err := w.Anchor(t0+1000, 50); err != nil {
		t.Fatalf("close anchor: %v", err)
	}
	if w.Pending() != 60 {
		t.Fatalf("anchor inside spacing was applied: %d pending", w.Pending())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := samplesOf(parseRecords(t, fs.files[fs.order[0]].Bytes())); len(got) != 60 {
		t.Fatalf("samples after close: got %d want 60", len(got))
	}
}

func TestCreateFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "c.mseed")
	f, err := CreateFile(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if _, err := CreateFile(filepath.Join(blocker, "x", "y.mseed")); err == nil {
		t.Fatalf("expected error for a file in the directory path")
	}
}

func TestWriterCreatesFilesOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(Config{
		Template:   MustParseTemplate(filepath.Join(dir, "%N", "%S", "%y-%j.%L.%C.mseed")),
		Identity:   Identity{Station: "OBS1", Location: "00", Channel: "BHZ", Network: "XX"},
		SampleRate: 50,
	})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Anchor(tai.FromDate(tai.Date{Year: 2024, Month: 2, Day: 29}), 0); err != nil {
		t.Fatalf("anchor: %v", err)
	}
	pushRange(t, w, 0, 5)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	want := filepath.Join(dir, "XX", "OBS1", "2024-060.00.BHZ.mseed")
	if !slices.Equal(w.Files(), []string{want}) {
		t.Fatalf("files: got %v want %v", w.Files(), want)
	}
	info, err := os.Stat(want)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != mseed.RecordSize {
		t.Fatalf("size: got %d want %d", info.Size(), mseed.RecordSize)
	}
}

func TestCreateFailureIsSticky(t *testing.T) {
	t.Parallel()

	boom := errors.New("read-only file system")
	w, err := New(Config{
		Identity:   Identity{Station: "ST007", Channel: "HHZ"},
		SampleRate: 100,
		Create:     func(string) (io.WriteCloser, error) { return nil, boom },
	})
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	t0 := tai.FromDate(tai.Date{Year: 2023, Month: 1, Day: 1})
	if err := w.Anchor(t0, 0); !errors.Is(err, boom) {
		t.Fatalf("anchor: expected create error, got %v", err)
	}
	if err := w.Push(1); !errors.Is(err, boom) {
		t.Fatalf("push after failure: got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
