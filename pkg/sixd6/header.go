// Package sixd6 reads and writes the 6D6 datalogger container: the 512-byte
// tagged header blocks and the raw data blocks that follow them.
package sixd6

import (
	"strings"

	"github.com/samcharles93/sixd6/pkg/tai"
)

const (
	// BlockSize is the size of every block in a container, headers included.
	BlockSize = 512

	// HeaderSize is the serialized size of a Header.
	HeaderSize = BlockSize

	// MaxChannels bounds Header.ChannelCount.
	MaxChannels = 8

	// MagicV2 prefixes version 2 headers. Version 1 headers have no prefix.
	MagicV2 = "6D6\x02"

	// String field widths, terminator included.
	RecorderIDSize  = 32
	RTCIDSize       = 32
	LatitudeSize    = 32
	LongitudeSize   = 32
	ChannelNameSize = 16
	CommentSize     = 256
)

// SyncType says what the sync slot of a header carries.
type SyncType uint8

const (
	SyncNone SyncType = iota
	SyncSync
	SyncSkew
)

func (s SyncType) String() string {
	switch s {
	case SyncSync:
		return "sync"
	case SyncSkew:
		return "skew"
	default:
		return "none"
	}
}

// Header is one decoded header block. Per-channel arrays are zero beyond
// ChannelCount.
type Header struct {
	Version   int
	StartTime tai.BCD

	// SyncTime and Skew are meaningful only when SyncType is not SyncNone.
	SyncType SyncType
	SyncTime tai.BCD
	Skew     int64 // microseconds

	// Address is the block where the data described by this header ends.
	// In an end header it is the container's total block count.
	Address uint32

	SampleRate     uint16
	WrittenSamples uint64
	LostSamples    uint32
	ChannelCount   uint8
	Gain           [MaxChannels]uint8 // tenths of dB
	BitDepth       uint8

	RecorderID   string
	RTCID        string
	Latitude     string
	Longitude    string
	ChannelNames [MaxChannels]string
	Comment      string
}

// Channels returns the names of the recorded channels.
func (h *Header) Channels() []string {
	n := int(h.ChannelCount)
	if n > MaxChannels {
		n = MaxChannels
	}
	out := make([]string, n)
	copy(out, h.ChannelNames[:n])
	return out
}

// GainDB returns the gain of channel i in dB.
func (h *Header) GainDB(i int) float64 {
	return float64(h.Gain[i]) / 10
}

// Size returns the number of bytes covered by Address.
func (h *Header) Size() int64 {
	return int64(h.Address) * BlockSize
}

// Sniff reports whether b could hold a header: a full block whose last byte
// is zero.
func Sniff(b []byte) bool {
	return len(b) >= HeaderSize && b[HeaderSize-1] == 0
}

func trimNUL(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return s[:i]
	}
	return s
}
