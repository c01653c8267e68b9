// Package skew turns the recorder's elapsed-time counter into absolute time,
// correcting for the clock drift measured between the start and end sync.
package skew

import (
	"fmt"
	"math"

	"github.com/samcharles93/sixd6/pkg/sixd6"
	"github.com/samcharles93/sixd6/pkg/tai"
)

// Corrector maps elapsed recording time to corrected absolute time. All
// instants it holds are aligned on the leap-second epoch of the sync time.
type Corrector struct {
	// Sync is the epoch at which the recorder clock was set.
	Sync tai.Time
	// Start is the recording start, aligned to Sync.
	Start tai.Time

	// HasSkew is set when the end header carries a drift measurement.
	HasSkew bool
	// SkewTime is the aligned instant of the drift measurement.
	SkewTime tai.Time
	// SkewStart and SkewEnd are the drift at Sync and at SkewTime in µs.
	SkewStart int64
	SkewEnd   int64
	// Rate is the drift in microseconds per microsecond.
	Rate float64
}

// Align moves t onto the leap-second epoch of ref by adding the leap seconds
// inserted between the two instants.
func Align(t, ref tai.Time) tai.Time {
	return t + tai.Time(tai.LeapOffset(t)-tai.LeapOffset(ref))*tai.Second
}

// New derives a Corrector from a start header, which must carry a sync, and
// an end header, which may carry a drift measurement.
func New(start, end *sixd6.Header) (*Corrector, error) {
	if start.SyncType != sixd6.SyncSync {
		return nil, fmt.Errorf("%w: start header has sync type %s", sixd6.ErrMalformedHeader, start.SyncType)
	}
	sync, err := start.SyncTime.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: sync time: %w", sixd6.ErrMalformedHeader, err)
	}
	st, err := start.StartTime.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: start time: %w", sixd6.ErrMalformedHeader, err)
	}

	c := &Corrector{
		Sync:      sync,
		Start:     Align(st, sync),
		SkewStart: start.Skew,
	}
	if end == nil || end.SyncType != sixd6.SyncSkew || !end.SyncTime.Valid() {
		return c, nil
	}
	raw, err := end.SyncTime.Time()
	if err != nil {
		return nil, fmt.Errorf("%w: skew time: %w", sixd6.ErrMalformedHeader, err)
	}
	c.SkewTime = Align(raw, sync)
	c.SkewEnd = end.Skew + int64(c.SkewTime-raw)
	if c.SkewTime == sync {
		return nil, fmt.Errorf("%w: skew measured at sync time", sixd6.ErrMalformedHeader)
	}
	c.Rate = float64(c.SkewEnd-c.SkewStart) / float64(c.SkewTime-sync)
	c.HasSkew = true
	return c, nil
}

// Correct applies the drift to a naive aligned instant.
func (c *Corrector) Correct(naive tai.Time) tai.Time {
	if !c.HasSkew {
		return naive
	}
	return naive + tai.Time(c.SkewStart) + tai.Time(math.Round(float64(naive-c.Sync)*c.Rate))
}

// At returns the corrected instant elapsed seconds after the recording
// start.
func (c *Corrector) At(elapsed int32) tai.Time {
	return c.Correct(c.Start + tai.Time(elapsed)*tai.Second)
}

// PPM returns the drift rate in parts per million.
func (c *Corrector) PPM() float64 {
	return c.Rate * 1e6
}
