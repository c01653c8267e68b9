// Package mseed encodes 512-byte MiniSEED 2.4 data records holding
// uncompressed big-endian INT32 samples.
package mseed

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samcharles93/sixd6/pkg/tai"
)

const (
	// RecordSize is the length of every record.
	RecordSize = 512
	// DataOffset is where the sample data begins.
	DataOffset = 64
	// MaxSamples is the number of samples one record holds.
	MaxSamples = (RecordSize - DataOffset) / 4

	// EncodingInt32 is the SEED data encoding code for 32-bit integers.
	EncodingInt32 = 3

	// ActivityLeapSecond marks a positive leap second inside the record.
	ActivityLeapSecond = 0x10
)

// Fixed section of data header offsets.
const (
	offSequence    = 0
	offQuality     = 6
	offReserved    = 7
	offStation     = 8
	offLocation    = 13
	offChannel     = 15
	offNetwork     = 18
	offStart       = 20
	offNumSamples  = 30
	offRateFactor  = 32
	offRateMult    = 34
	offActivity    = 36
	offBlockettes  = 39
	offDataBegin   = 44
	offFirstBlkt   = 46
	offB1000       = 48
	offB1001       = 56
	maxSequence    = 999999
	b1000Type      = 1000
	b1001Type      = 1001
	recordLenPower = 9
)

// Record is a data record under construction. The zero value is not usable;
// call Reset first.
type Record struct {
	buf [RecordSize]byte
	n   int
}

// New returns a record initialised with sequence number seq.
func New(seq int) *Record {
	r := &Record{}
	r.Reset(seq)
	return r
}

// Reset clears samples and identity and sets the sequence number. Sequence
// numbers wrap to 1 after 999999.
func (r *Record) Reset(seq int) {
	r.buf = [RecordSize]byte{}
	r.n = 0

	seq = (seq-1)%maxSequence + 1
	if seq < 1 {
		seq += maxSequence
	}
	copy(r.buf[offSequence:], fmt.Sprintf("%06d", seq))
	r.buf[offQuality] = 'D'
	r.buf[offReserved] = ' '
	putPadded(r.buf[offStation:offLocation], "")
	putPadded(r.buf[offLocation:offChannel], "")
	putPadded(r.buf[offChannel:offNetwork], "")
	putPadded(r.buf[offNetwork:offStart], "")

	r.buf[offBlockettes] = 2
	binary.BigEndian.PutUint16(r.buf[offDataBegin:], DataOffset)
	binary.BigEndian.PutUint16(r.buf[offFirstBlkt:], offB1000)

	b := r.buf[offB1000:]
	binary.BigEndian.PutUint16(b[0:], b1000Type)
	binary.BigEndian.PutUint16(b[2:], offB1001)
	b[4] = EncodingInt32
	b[5] = 1 // big endian
	b[6] = recordLenPower

	b = r.buf[offB1001:]
	binary.BigEndian.PutUint16(b[0:], b1001Type)
}

// SetIdentity sets the station, location, channel and network codes. Codes
// longer than their field are cut.
func (r *Record) SetIdentity(station, location, channel, network string) {
	putPadded(r.buf[offStation:offLocation], station)
	putPadded(r.buf[offLocation:offChannel], location)
	putPadded(r.buf[offChannel:offNetwork], channel)
	putPadded(r.buf[offNetwork:offStart], network)
}

// SetSampleRate stores rate as a SEED factor and multiplier pair.
func (r *Record) SetSampleRate(rate float64) {
	factor, mult := rateFactors(rate)
	binary.BigEndian.PutUint16(r.buf[offRateFactor:], uint16(factor))
	binary.BigEndian.PutUint16(r.buf[offRateMult:], uint16(mult))
}

func rateFactors(rate float64) (int16, int16) {
	switch {
	case rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0):
		return 0, 0
	case rate == math.Trunc(rate) && rate <= math.MaxInt16:
		return int16(rate), 1
	case rate < 1 && 1/rate == math.Trunc(1/rate) && 1/rate <= math.MaxInt16:
		// Negative factor is a period in seconds.
		return -int16(1 / rate), 1
	case rate < math.MaxInt16/10000.0:
		return int16(math.Round(rate * 10000)), -10000
	default:
		return int16(min(math.Round(rate), math.MaxInt16)), 1
	}
}

// SetStartTime sets the time of the first sample. The fixed header resolves
// 100 µs and blockette 1001 carries the remaining microseconds.
func (r *Record) SetStartTime(d tai.Date) {
	b := r.buf[offStart:]
	binary.BigEndian.PutUint16(b[0:], uint16(d.Year))
	binary.BigEndian.PutUint16(b[2:], uint16(d.Yday))
	b[4] = byte(d.Hour)
	b[5] = byte(d.Min)
	b[6] = byte(d.Sec)
	b[7] = 0
	binary.BigEndian.PutUint16(b[8:], uint16(d.Usec/100))
	r.buf[offB1001+5] = byte(int8(d.Usec % 100))
}

// SetLeapSecond sets or clears the leap second activity flag.
func (r *Record) SetLeapSecond(leap bool) {
	if leap {
		r.buf[offActivity] |= ActivityLeapSecond
	} else {
		r.buf[offActivity] &^= ActivityLeapSecond
	}
}

// Push appends a sample. It reports false when the record is full.
func (r *Record) Push(v int32) bool {
	if r.n == MaxSamples {
		return false
	}
	binary.BigEndian.PutUint32(r.buf[DataOffset+4*r.n:], uint32(v))
	r.n++
	binary.BigEndian.PutUint16(r.buf[offNumSamples:], uint16(r.n))
	return true
}

// Len returns the number of samples in the record.
func (r *Record) Len() int {
	return r.n
}

// Full reports whether another sample would be rejected.
func (r *Record) Full() bool {
	return r.n == MaxSamples
}

// Bytes returns the serialized record. The slice aliases the record.
func (r *Record) Bytes() []byte {
	return r.buf[:]
}

func putPadded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}
