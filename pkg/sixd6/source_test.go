package sixd6

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func buildContainer(t *testing.T, lead int, start, end Header, data ...[BlockSize]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(make([]byte, BlockSize*lead))
	for _, h := range []*Header{&start, &end} {
		raw, err := h.MarshalBinary()
		if err != nil {
			t.Fatalf("encode header: %v", err)
		}
		buf.Write(raw)
	}
	for _, b := range data {
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func dataBlock(fill byte) [BlockSize]byte {
	var b [BlockSize]byte
	for i := range b {
		b[i] = fill
	}
	return b
}

func readAll(t *testing.T, s *Source) []byte {
	t.Helper()
	var out []byte
	var block [BlockSize]byte
	for {
		err := s.Next(&block)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, block[0])
	}
}

func TestSourceReadsDataRegion(t *testing.T) {
	t.Parallel()

	start, end := testHeader(), testHeader()
	start.Address = 0
	end.SyncType = SyncNone
	end.Address = 5
	raw := buildContainer(t, 0, start, end, dataBlock(1), dataBlock(2), dataBlock(3), dataBlock(4))

	s, err := NewSource(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if s.Skipped {
		t.Fatalf("unexpected fallback skip")
	}
	if s.Start.SyncType != SyncSync || s.End.Address != 5 {
		t.Fatalf("headers not decoded: %+v %+v", s.Start, s.End)
	}
	if got := readAll(t, s); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("data blocks mismatch: got %v", got)
	}
	if s.Block() != 5 || s.Blocks() != 5 {
		t.Fatalf("block counters: got %d/%d", s.Block(), s.Blocks())
	}
}

func TestSourceFallbackSkip(t *testing.T) {
	t.Parallel()

	start, end := testHeader(), testHeader()
	start.Address = 2
	end.Address = 3
	raw := buildContainer(t, 1, start, end, dataBlock(9))
	raw[BlockSize-1] = 0xff // block 0 is not a header

	s, err := NewSource(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if !s.Skipped {
		t.Fatalf("expected fallback skip")
	}
	if got := readAll(t, s); !bytes.Equal(got, []byte{9}) {
		t.Fatalf("data blocks mismatch: got %v", got)
	}
}

func TestSourceSkipsToStartAddress(t *testing.T) {
	t.Parallel()

	start, end := testHeader(), testHeader()
	start.Address = 4
	end.Address = 6
	raw := buildContainer(t, 0, start, end, dataBlock(1), dataBlock(2), dataBlock(3), dataBlock(4))

	s, err := NewSource(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if got := readAll(t, s); !bytes.Equal(got, []byte{3, 4}) {
		t.Fatalf("data blocks mismatch: got %v", got)
	}
}

func TestSourceErrors(t *testing.T) {
	t.Parallel()

	start, end := testHeader(), testHeader()
	start.Address = 2
	end.Address = 4
	raw := buildContainer(t, 0, start, end, dataBlock(1))

	t.Run("truncated data", func(t *testing.T) {
		t.Parallel()
		s, err := NewSource(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("new source: %v", err)
		}
		var block [BlockSize]byte
		if err := s.Next(&block); err != nil {
			t.Fatalf("first block: %v", err)
		}
		if err := s.Next(&block); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("expected unexpected EOF, got %v", err)
		}
	})

	t.Run("bad end header", func(t *testing.T) {
		t.Parallel()
		bad := bytes.Clone(raw)
		copy(bad[BlockSize:], "junk")
		if _, err := NewSource(bytes.NewReader(bad)); !errors.Is(err, ErrMalformedHeader) {
			t.Fatalf("expected ErrMalformedHeader, got %v", err)
		}
	})

	t.Run("no header", func(t *testing.T) {
		t.Parallel()
		if _, err := NewSource(bytes.NewReader(make([]byte, BlockSize))); !errors.Is(err, ErrInvalidContainer) {
			t.Fatalf("expected ErrInvalidContainer, got %v", err)
		}
	})
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	start, end := testHeader(), testHeader()
	start.Address = 2
	end.Address = 4
	path := filepath.Join(t.TempDir(), "station.6d6")
	if err := os.WriteFile(path, buildContainer(t, 0, start, end, dataBlock(5), dataBlock(6)), 0o644); err != nil {
		t.Fatalf("write container: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			t.Fatalf("close: %v", cerr)
		}
	}()
	if got := readAll(t, s); !bytes.Equal(got, []byte{5, 6}) {
		t.Fatalf("data blocks mismatch: got %v", got)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.6d6")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
