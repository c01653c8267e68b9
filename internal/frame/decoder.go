// Package frame demultiplexes the 6D6 data stream into control frames and
// per-channel sample groups.
//
// A data block holds 128 big-endian 32-bit words. A word with its
// low bit set opens a control frame of four words; any other word opens a
// sample group of one word per channel. Groups may span block boundaries.
package frame

import (
	"fmt"

	"github.com/samcharles93/sixd6/pkg/sixd6"
)

// WordsPerBlock is the number of 32-bit words in one data block.
const WordsPerBlock = sixd6.BlockSize / 4

// ControlWords is the length of a control frame including its code word.
const ControlWords = 4

// Kind classifies a group of words.
type Kind uint8

const (
	KindNone Kind = iota
	KindControl
	KindSamples
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindSamples:
		return "samples"
	default:
		return "none"
	}
}

// Code is the full value of a control frame's first word.
type Code int32

const (
	CodeTime        Code = 1
	CodeBattery     Code = 3
	CodeTemperature Code = 5
	CodeLostFrames  Code = 7
	CodeCheck       Code = 9
	CodeReboot      Code = 11
	CodeEnd         Code = 13
	CodeFrameNumber Code = 15
)

func (c Code) String() string {
	switch c {
	case CodeTime:
		return "time"
	case CodeBattery:
		return "battery"
	case CodeTemperature:
		return "temperature"
	case CodeLostFrames:
		return "lost-frames"
	case CodeCheck:
		return "check"
	case CodeReboot:
		return "reboot"
	case CodeEnd:
		return "end"
	case CodeFrameNumber:
		return "frame-number"
	default:
		return fmt.Sprintf("code-%d", int32(c))
	}
}

// Frame is one complete group. Words aliases decoder storage and is only
// valid until the next call to Feed.
type Frame struct {
	Kind  Kind
	Words []int32
}

// Code returns the control code of a control frame.
func (f Frame) Code() Code {
	return Code(f.Words[0])
}

// Decoder assembles groups one word at a time.
type Decoder struct {
	channels  int
	kind      Kind
	expected  int
	collected int
	values    [max(ControlWords, sixd6.MaxChannels)]int32
}

// NewDecoder returns a decoder for a stream with the given channel count.
func NewDecoder(channels int) (*Decoder, error) {
	if channels < 1 || channels > sixd6.MaxChannels {
		return nil, fmt.Errorf("%w: %d", sixd6.ErrChannelCount, channels)
	}
	return &Decoder{channels: channels}, nil
}

// Feed adds one word. It reports true when the word completes a group.
func (d *Decoder) Feed(w int32) (Frame, bool) {
	if d.kind == KindNone {
		d.kind, d.expected = KindSamples, d.channels
		if w&1 != 0 {
			d.kind, d.expected = KindControl, ControlWords
		}
		d.collected = 0
	}
	d.values[d.collected] = w
	d.collected++
	if d.collected < d.expected {
		return Frame{}, false
	}
	f := Frame{Kind: d.kind, Words: d.values[:d.collected]}
	d.kind = KindNone
	return f, true
}

// Pending returns the kind of the group in progress and how many of its
// words have been collected.
func (d *Decoder) Pending() (Kind, int) {
	if d.kind == KindNone {
		return KindNone, 0
	}
	return d.kind, d.collected
}

// Reset discards any group in progress.
func (d *Decoder) Reset() {
	d.kind = KindNone
	d.collected = 0
}
