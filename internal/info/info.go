// Package info summarises the headers of a 6D6 container.
package info

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/samcharles93/sixd6/internal/skew"
	"github.com/samcharles93/sixd6/pkg/sixd6"
	"github.com/samcharles93/sixd6/pkg/tai"
)

// Channel is one recorded channel.
type Channel struct {
	Name string
	Gain float64 // dB
}

// Summary holds what a container's headers say about the recording. Dates
// are shown as the recorder wrote them.
type Summary struct {
	RecorderID string
	Start      tai.Date
	End        tai.Date
	Sync       tai.Date

	HasSkew  bool
	SkewTime tai.Date
	// Skew is the measured drift in µs, corrected for leap seconds
	// inserted since the sync.
	Skew    int64
	SkewPPM float64

	Duration   time.Duration
	SampleRate int
	Channels   []Channel
	Size       int64
	Comment    string
}

// Summarize builds a Summary. The start header must carry a sync. Neither
// header is modified.
func Summarize(start, end *sixd6.Header) (*Summary, error) {
	corr, err := skew.New(start, end)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		RecorderID: start.RecorderID,
		SampleRate: int(start.SampleRate),
		Size:       end.Size(),
		Comment:    start.Comment,
	}
	if s.Sync, err = start.SyncTime.Date(); err != nil {
		return nil, fmt.Errorf("%w: sync time: %w", sixd6.ErrMalformedHeader, err)
	}
	if s.Start, err = start.StartTime.Date(); err != nil {
		return nil, fmt.Errorf("%w: start time: %w", sixd6.ErrMalformedHeader, err)
	}
	if s.End, err = end.StartTime.Date(); err != nil {
		return nil, fmt.Errorf("%w: end time: %w", sixd6.ErrMalformedHeader, err)
	}
	if corr.HasSkew {
		if s.SkewTime, err = end.SyncTime.Date(); err != nil {
			return nil, fmt.Errorf("%w: skew time: %w", sixd6.ErrMalformedHeader, err)
		}
		s.HasSkew = true
		s.Skew = corr.SkewEnd
		s.SkewPPM = corr.PPM()
	}
	elapsed := tai.FromDate(s.End).UTC() - tai.FromDate(s.Start).UTC()
	s.Duration = time.Duration(max(elapsed, 0)) * time.Microsecond

	for i, name := range start.Channels() {
		s.Channels = append(s.Channels, Channel{Name: name, Gain: start.GainDB(i)})
	}
	return s, nil
}

const labelWidth = 12

// WriteText prints the summary as labelled lines.
func (s *Summary) WriteText(w io.Writer) error {
	var b strings.Builder
	line := func(label, format string, args ...any) {
		fmt.Fprintf(&b, "%-*s %s\n", labelWidth, label, fmt.Sprintf(format, args...))
	}
	line("Recorder:", "%s", s.RecorderID)
	line("Start time:", "%s", clock(s.Start, " ")+" UTC")
	line("End time:", "%s", clock(s.End, " ")+" UTC")
	line("Sync time:", "%s", clock(s.Sync, " ")+" UTC")
	if s.HasSkew {
		line("Skew time:", "%s", clock(s.SkewTime, " ")+" UTC")
		line("Skew:", "%dµs (%.3fppm)", s.Skew, s.SkewPPM)
	}
	line("Duration:", "%s", FormatDuration(s.Duration))
	line("Sample rate:", "%d SPS", s.SampleRate)
	for i, ch := range s.Channels {
		label := ""
		if i == 0 {
			label = "Channels:"
		}
		line(label, "%s (gain %.1f)", ch.Name, ch.Gain)
	}
	line("Size:", "%.1f MB", float64(s.Size)/1e6)
	fmt.Fprintf(&b, "%-*s ", labelWidth, "Comment:")
	b.WriteString(leftPad(s.Comment, strings.Repeat(" ", labelWidth+1)))

	_, err := io.WriteString(w, b.String())
	return err
}

type jsonChannel struct {
	Name string  `json:"name"`
	Gain float64 `json:"gain"`
}

type jsonSummary struct {
	RecorderID string        `json:"recorder_id"`
	StartTime  string        `json:"start_time"`
	EndTime    string        `json:"end_time"`
	SyncTime   string        `json:"sync_time"`
	SkewTime   string        `json:"skew_time,omitempty"`
	Skew       *int64        `json:"skew,omitempty"`
	SampleRate int           `json:"sample_rate"`
	Size       int64         `json:"size"`
	Channels   []jsonChannel `json:"channels"`
	Comment    string        `json:"comment"`
}

// WriteJSON prints the summary as one JSON object followed by a newline.
func (s *Summary) WriteJSON(w io.Writer) error {
	out := jsonSummary{
		RecorderID: s.RecorderID,
		StartTime:  clock(s.Start, "T") + "Z",
		EndTime:    clock(s.End, "T") + "Z",
		SyncTime:   clock(s.Sync, "T") + "Z",
		SampleRate: s.SampleRate,
		Size:       s.Size,
		Channels:   make([]jsonChannel, 0, len(s.Channels)),
		Comment:    s.Comment,
	}
	if s.HasSkew {
		out.SkewTime = clock(s.SkewTime, "T") + "Z"
		out.Skew = &s.Skew
	}
	for _, ch := range s.Channels {
		out.Channels = append(out.Channels, jsonChannel{Name: ch.Name, Gain: math.Round(ch.Gain*10) / 10})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = w.Write(append(raw, '\n'))
	return err
}

// FormatDuration renders d in whole seconds as "1d 2h 3m 4s", omitting zero
// units.
func FormatDuration(d time.Duration) string {
	sec := int64(d / time.Second)
	if sec <= 0 {
		return "0s"
	}
	var parts []string
	for _, u := range []struct {
		size   int64
		suffix string
	}{{86400, "d"}, {3600, "h"}, {60, "m"}, {1, "s"}} {
		if n := sec / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		}
		sec %= u.size
	}
	return strings.Join(parts, " ")
}

func clock(d tai.Date, sep string) string {
	return fmt.Sprintf("%04d-%02d-%02d%s%02d:%02d:%02d", d.Year, d.Month, d.Day, sep, d.Hour, d.Min, d.Sec)
}

// leftPad indents every non-empty line of s after the first with pad and
// ends the result with a newline.
func leftPad(s, pad string) string {
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
