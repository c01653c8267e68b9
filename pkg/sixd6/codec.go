package sixd6

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/samcharles93/sixd6/pkg/tai"
)

// Wire tags, in the order they appear.
const (
	tagTime       = "time"
	tagSync       = "sync"
	tagSkew       = "skew"
	tagAddress    = "addr"
	tagRate       = "rate"
	tagWritten    = "writ"
	tagLost       = "lost"
	tagChannels   = "chan"
	tagGain       = "gain"
	tagBitDepth   = "bitd"
	tagRecorderID = "rcid"
	tagRTCID      = "rtci"
	tagLatitude   = "lati"
	tagLongitude  = "logi"
	tagAliases    = "alia"
	tagComment    = "cmnt"
)

// The sync slot is a tag, a BCD timestamp and a 32-bit skew, or all zeros.
const syncSlotSize = 4 + len(tai.BCD{}) + 4

// field is one step of the header grammar. A field with an empty tag owns
// all of its bytes. pad marks fields that may be followed by zero bytes
// before the next tag.
type field struct {
	tag    string
	pad    bool
	decode func(*cursor, *Header) error
	encode func(*encoder, *Header) error
}

var layout = []field{
	{
		tag:    tagTime,
		decode: func(c *cursor, h *Header) error { return c.bcd(&h.StartTime) },
		encode: func(e *encoder, h *Header) error { return e.put(h.StartTime[:]) },
	},
	{decode: decodeSync, encode: encodeSync},
	{
		tag: tagAddress,
		decode: func(c *cursor, h *Header) (err error) {
			h.Address, err = c.u32()
			return err
		},
		encode: func(e *encoder, h *Header) error { return e.u32(h.Address) },
	},
	{
		tag: tagRate,
		decode: func(c *cursor, h *Header) (err error) {
			h.SampleRate, err = c.u16()
			return err
		},
		encode: func(e *encoder, h *Header) error { return e.u16(h.SampleRate) },
	},
	{
		tag: tagWritten,
		decode: func(c *cursor, h *Header) (err error) {
			h.WrittenSamples, err = c.u64()
			return err
		},
		encode: func(e *encoder, h *Header) error { return e.u64(h.WrittenSamples) },
	},
	{
		tag: tagLost,
		decode: func(c *cursor, h *Header) (err error) {
			h.LostSamples, err = c.u32()
			return err
		},
		encode: func(e *encoder, h *Header) error { return e.u32(h.LostSamples) },
	},
	{tag: tagChannels, decode: decodeChannelCount, encode: func(e *encoder, h *Header) error { return e.put([]byte{h.ChannelCount}) }},
	{
		tag: tagGain,
		decode: func(c *cursor, h *Header) error {
			b, err := c.take(int(h.ChannelCount))
			copy(h.Gain[:], b)
			return err
		},
		encode: func(e *encoder, h *Header) error { return e.put(h.Gain[:h.ChannelCount]) },
	},
	{
		tag: tagBitDepth,
		decode: func(c *cursor, h *Header) error {
			b, err := c.take(1)
			if err != nil {
				return err
			}
			h.BitDepth = b[0]
			return nil
		},
		encode: func(e *encoder, h *Header) error { return e.put([]byte{h.BitDepth}) },
	},
	stringField(tagRecorderID, RecorderIDSize, func(h *Header) *string { return &h.RecorderID }),
	stringField(tagRTCID, RTCIDSize, func(h *Header) *string { return &h.RTCID }),
	stringField(tagLatitude, LatitudeSize, func(h *Header) *string { return &h.Latitude }),
	stringField(tagLongitude, LongitudeSize, func(h *Header) *string { return &h.Longitude }),
	{tag: tagAliases, pad: true, decode: decodeAliases, encode: encodeAliases},
	{tag: tagComment, decode: decodeComment, encode: encodeComment},
}

func stringField(tag string, size int, ref func(*Header) *string) field {
	return field{
		tag: tag,
		pad: true,
		decode: func(c *cursor, h *Header) error {
			s, err := c.cstring(size)
			if err != nil {
				return err
			}
			*ref(h) = s
			return c.advance(len(s) + 1)
		},
		encode: func(e *encoder, h *Header) error { return e.cstring(*ref(h), size) },
	}
}

// DecodeHeader parses a header block. Every grammar violation is reported
// as ErrMalformedHeader.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: short block of %d bytes", ErrMalformedHeader, len(b))
	}
	if b[HeaderSize-1] != 0 {
		return h, fmt.Errorf("%w: last byte is not zero", ErrMalformedHeader)
	}
	c := cursor{buf: b[:HeaderSize]}
	h.Version = 1
	if string(b[:len(MagicV2)]) == MagicV2 {
		h.Version = 2
		if err := c.advance(len(MagicV2)); err != nil {
			return Header{}, err
		}
	}
	for _, f := range layout {
		if f.tag != "" {
			if err := c.expect(f.tag); err != nil {
				return Header{}, err
			}
		}
		if err := f.decode(&c, &h); err != nil {
			return Header{}, err
		}
		if f.pad {
			if err := c.skipZeros(); err != nil {
				return Header{}, err
			}
		}
	}
	return h, nil
}

// EncodeHeader serializes h into dst, which must hold at least HeaderSize
// bytes. String fields are clipped to their width, except the comment, which
// fails with ErrCommentTruncated rather than lose text. Version 0 is written
// as version 1.
func EncodeHeader(dst []byte, h *Header) error {
	if len(dst) < HeaderSize {
		return fmt.Errorf("sixd6: header buffer of %d bytes", len(dst))
	}
	if h.ChannelCount < 1 || h.ChannelCount > MaxChannels {
		return fmt.Errorf("%w: %d", ErrChannelCount, h.ChannelCount)
	}
	var e encoder
	switch h.Version {
	case 0, 1:
	case 2:
		if err := e.put([]byte(MagicV2)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	for _, f := range layout {
		if f.tag != "" {
			if err := e.put([]byte(f.tag)); err != nil {
				return err
			}
		}
		if err := f.encode(&e, h); err != nil {
			return err
		}
	}
	copy(dst, e.buf[:])
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	if err := EncodeHeader(b, h); err != nil {
		return nil, err
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (h *Header) UnmarshalBinary(b []byte) error {
	d, err := DecodeHeader(b)
	if err != nil {
		return err
	}
	*h = d
	return nil
}

func decodeSync(c *cursor, h *Header) error {
	b, err := c.peek(syncSlotSize)
	if err != nil {
		return err
	}
	var ts tai.BCD
	copy(ts[:], b[4:])
	switch tag := string(b[:4]); {
	case tag == tagSync && ts.Valid():
		h.SyncType = SyncSync
	case tag == tagSkew && ts.Valid():
		h.SyncType = SyncSkew
	default:
		h.SyncType = SyncNone
	}
	if h.SyncType != SyncNone {
		h.SyncTime = ts
		h.Skew = int64(int32(binary.BigEndian.Uint32(b[4+len(ts):])))
	}
	return c.advance(syncSlotSize)
}

func encodeSync(e *encoder, h *Header) error {
	var slot [syncSlotSize]byte
	switch h.SyncType {
	case SyncNone:
		return e.put(slot[:])
	case SyncSync:
		copy(slot[:], tagSync)
	case SyncSkew:
		copy(slot[:], tagSkew)
	default:
		return fmt.Errorf("%w: sync type %d", ErrMalformedHeader, h.SyncType)
	}
	if !h.SyncTime.Valid() {
		return fmt.Errorf("%w: sync time % x", tai.ErrInvalidBCD, h.SyncTime[:])
	}
	if h.Skew < math.MinInt32 || h.Skew > math.MaxInt32 {
		return fmt.Errorf("%w: %dµs", ErrSkewRange, h.Skew)
	}
	copy(slot[4:], h.SyncTime[:])
	binary.BigEndian.PutUint32(slot[4+len(h.SyncTime):], uint32(int32(h.Skew)))
	return e.put(slot[:])
}

func decodeChannelCount(c *cursor, h *Header) error {
	b, err := c.take(1)
	if err != nil {
		return err
	}
	if b[0] < 1 || b[0] > MaxChannels {
		return fmt.Errorf("%w: %w: %d", ErrMalformedHeader, ErrChannelCount, b[0])
	}
	h.ChannelCount = b[0]
	return nil
}

func decodeAliases(c *cursor, h *Header) error {
	for i := 0; i < int(h.ChannelCount); i++ {
		s, err := c.cstring(ChannelNameSize)
		if err != nil {
			return err
		}
		h.ChannelNames[i] = s
		if err := c.advance(len(s) + 1); err != nil {
			return err
		}
	}
	return nil
}

func encodeAliases(e *encoder, h *Header) error {
	for i := 0; i < int(h.ChannelCount); i++ {
		if err := e.cstring(h.ChannelNames[i], ChannelNameSize); err != nil {
			return err
		}
	}
	return nil
}

// The comment runs to its terminator; nothing follows it but zero fill.
func decodeComment(c *cursor, h *Header) error {
	s, err := c.cstring(CommentSize)
	if err != nil {
		return err
	}
	h.Comment = s
	return nil
}

func encodeComment(e *encoder, h *Header) error {
	s := h.Comment
	room := HeaderSize - e.off - 1
	if strings.IndexByte(s, 0) >= 0 || len(s) >= CommentSize || len(s) > room {
		return fmt.Errorf("%w: %d bytes, %d available", ErrCommentTruncated, len(s), min(room, CommentSize-1))
	}
	return e.cstring(s, CommentSize)
}

// cursor walks a header block. Any step that would leave it at or beyond
// the end of the block fails.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) fail(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrMalformedHeader, c.off, fmt.Sprintf(format, args...))
}

func (c *cursor) advance(n int) error {
	c.off += n
	if c.off >= HeaderSize {
		return c.fail("field runs past end of block")
	}
	return nil
}

func (c *cursor) peek(n int) ([]byte, error) {
	if n < 0 || c.off+n > HeaderSize {
		return nil, c.fail("need %d bytes", n)
	}
	return c.buf[c.off : c.off+n], nil
}

func (c *cursor) take(n int) ([]byte, error) {
	b, err := c.peek(n)
	if err != nil {
		return nil, err
	}
	return b, c.advance(n)
}

func (c *cursor) expect(tag string) error {
	b, err := c.peek(len(tag))
	if err != nil {
		return err
	}
	if string(b) != tag {
		return c.fail("want tag %q, got %q", tag, b)
	}
	return c.advance(len(tag))
}

func (c *cursor) bcd(dst *tai.BCD) error {
	b, err := c.take(len(dst))
	copy(dst[:], b)
	return err
}

func (c *cursor) u16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *cursor) u32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *cursor) u64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// cstring returns the terminated string at the cursor without moving it.
// size is the field width including the terminator.
func (c *cursor) cstring(size int) (string, error) {
	rest := c.buf[c.off:]
	n := bytes.IndexByte(rest, 0)
	if n < 0 {
		return "", c.fail("unterminated string")
	}
	if n >= size {
		return "", c.fail("string of %d bytes exceeds width %d", n, size)
	}
	return string(rest[:n]), nil
}

func (c *cursor) skipZeros() error {
	for c.buf[c.off] == 0 {
		if err := c.advance(1); err != nil {
			return err
		}
	}
	return nil
}

type encoder struct {
	buf [HeaderSize]byte
	off int
}

func (e *encoder) put(p []byte) error {
	if e.off+len(p) > HeaderSize {
		return fmt.Errorf("%w: %d bytes at offset %d", ErrHeaderTooLarge, len(p), e.off)
	}
	e.off += copy(e.buf[e.off:], p)
	return nil
}

func (e *encoder) u16(v uint16) error { return e.put(binary.BigEndian.AppendUint16(nil, v)) }
func (e *encoder) u32(v uint32) error { return e.put(binary.BigEndian.AppendUint32(nil, v)) }
func (e *encoder) u64(v uint64) error { return e.put(binary.BigEndian.AppendUint64(nil, v)) }

// cstring writes s clipped to size-1 bytes on a rune boundary, then a
// terminator.
func (e *encoder) cstring(s string, size int) error {
	s = clip(trimNUL(s), size-1)
	if err := e.put([]byte(s)); err != nil {
		return err
	}
	return e.put([]byte{0})
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
