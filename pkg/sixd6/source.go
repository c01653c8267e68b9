package sixd6

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const streamBufferSize = 128 << 10

// Source reads a container sequentially: the start header, the end header,
// then the data blocks up to End.Address. Block numbers count from the start
// header. Sources never seek, so raw devices and pipes work.
type Source struct {
	Start Header
	End   Header

	// Skipped is set when block 0 was not a header and the start header
	// was found in block 1.
	Skipped bool

	r       io.Reader
	next    uint32
	started bool
	closer  func() error
}

// OpenRaw opens a container file or device for reading. When path cannot be
// opened it is retried below /dev, so "sdb1" finds "/dev/sdb1". The error of
// the first attempt is returned.
func OpenRaw(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}
	if alt, altErr := os.Open(filepath.Join("/dev", path)); altErr == nil {
		return alt, nil
	}
	return nil, err
}

// Open opens a container with OpenRaw and reads its headers. Regular files
// are memory-mapped where possible.
func Open(path string) (*Source, error) {
	f, err := OpenRaw(path)
	if err != nil {
		return nil, err
	}

	r, closer, err := openReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s, err := NewSource(r)
	if err != nil {
		_ = closer()
		return nil, err
	}
	s.closer = closer
	return s, nil
}

func openReader(f *os.File) (io.Reader, func() error, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := st.Size()
	if st.Mode().IsRegular() && size > 0 && size <= int64(int(^uint(0)>>1)) {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err == nil {
			// The mapping outlives the descriptor.
			_ = f.Close()
			return bytes.NewReader(data), func() error { return unix.Munmap(data) }, nil
		}
	}
	return bufio.NewReaderSize(f, streamBufferSize), f.Close, nil
}

// NewSource reads the start and end headers from r.
func NewSource(r io.Reader) (*Source, error) {
	s := &Source{r: r}
	var block [BlockSize]byte

	if err := s.read(block[:]); err != nil {
		return nil, err
	}
	start, err := DecodeHeader(block[:])
	if err != nil {
		if rerr := s.read(block[:]); rerr != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidContainer, err)
		}
		if start, err = DecodeHeader(block[:]); err != nil {
			return nil, fmt.Errorf("%w: start header: %w", ErrInvalidContainer, err)
		}
		s.Skipped = true
	}
	if err := s.read(block[:]); err != nil {
		return nil, err
	}
	end, err := DecodeHeader(block[:])
	if err != nil {
		return nil, fmt.Errorf("end header: %w", err)
	}

	s.Start, s.End = start, end
	s.next = 2
	return s, nil
}

// Next reads the next data block into block. It returns io.EOF once
// End.Address is reached. The first call skips forward to Start.Address
// when the data region does not begin right after the end header.
func (s *Source) Next(block *[BlockSize]byte) error {
	if !s.started {
		s.started = true
		for s.next < s.Start.Address && s.next < s.End.Address {
			if err := s.read(block[:]); err != nil {
				return fmt.Errorf("skip to block %d: %w", s.Start.Address, err)
			}
			s.next++
		}
	}
	if s.next >= s.End.Address {
		return io.EOF
	}
	if err := s.read(block[:]); err != nil {
		return fmt.Errorf("read block %d: %w", s.next, err)
	}
	s.next++
	return nil
}

// Block returns the number of the block Next will read.
func (s *Source) Block() uint32 {
	return s.next
}

// Blocks returns the total block count declared by the end header.
func (s *Source) Blocks() uint32 {
	return s.End.Address
}

// Close releases the underlying file or mapping.
func (s *Source) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}

func (s *Source) read(b []byte) error {
	if _, err := io.ReadFull(s.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}
