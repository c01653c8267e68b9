package frame

import (
	"encoding/binary"
	"fmt"
	"maps"

	"github.com/samcharles93/sixd6/pkg/sixd6"
)

// Handler receives the decoded stream.
type Handler interface {
	// Anchor is called for each time frame with the elapsed seconds it
	// carries and the index of the next sample group.
	Anchor(elapsed int32, index int64) error
	// Samples is called for each sample group after the first anchor, with
	// one value per channel. values is only valid during the call.
	Samples(values []int32) error
}

// Stats counts what the demuxer has seen.
type Stats struct {
	Blocks       uint64
	Anchors      uint64
	SampleGroups uint64
	// Discarded counts sample groups that arrived before the first anchor.
	Discarded uint64
	// Telemetry counts ignored control frames per code.
	Telemetry map[Code]uint64
}

// Demuxer drives a Handler from raw data blocks.
type Demuxer struct {
	dec      *Decoder
	h        Handler
	index    int64
	anchored bool
	done     bool
	stats    Stats
}

// NewDemuxer returns a demuxer for a stream with the given channel count.
func NewDemuxer(channels int, h Handler) (*Demuxer, error) {
	dec, err := NewDecoder(channels)
	if err != nil {
		return nil, err
	}
	return &Demuxer{
		dec:   dec,
		h:     h,
		stats: Stats{Telemetry: make(map[Code]uint64)},
	}, nil
}

// Block decodes one data block. Once an end frame has been seen the rest of
// the stream is ignored and Done reports true.
func (m *Demuxer) Block(block *[sixd6.BlockSize]byte) error {
	if m.done {
		return nil
	}
	m.stats.Blocks++
	for off := 0; off < sixd6.BlockSize; off += 4 {
		f, ok := m.dec.Feed(int32(binary.BigEndian.Uint32(block[off:])))
		if !ok {
			continue
		}
		if err := m.dispatch(f); err != nil {
			return fmt.Errorf("block %d word %d: %w", m.stats.Blocks-1, off/4, err)
		}
		if m.done {
			return nil
		}
	}
	return nil
}

func (m *Demuxer) dispatch(f Frame) error {
	if f.Kind == KindSamples {
		if !m.anchored {
			m.stats.Discarded++
			return nil
		}
		if err := m.h.Samples(f.Words); err != nil {
			return err
		}
		m.index++
		m.stats.SampleGroups++
		return nil
	}

	switch c := f.Code(); c {
	case CodeTime:
		m.anchored = true
		m.stats.Anchors++
		return m.h.Anchor(f.Words[1], m.index)
	case CodeEnd:
		m.done = true
	default:
		m.stats.Telemetry[c]++
	}
	return nil
}

// Done reports whether an end frame has been decoded.
func (m *Demuxer) Done() bool {
	return m.done
}

// Index returns the number of sample groups forwarded so far.
func (m *Demuxer) Index() int64 {
	return m.index
}

// Stats returns a snapshot of the counters.
func (m *Demuxer) Stats() Stats {
	s := m.stats
	s.Telemetry = maps.Clone(m.stats.Telemetry)
	return s
}
