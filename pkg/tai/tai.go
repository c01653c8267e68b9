// Package tai implements a continuous microsecond time scale that advances
// through leap seconds, plus conversions to and from UTC calendar dates.
//
// A Time is the POSIX time in microseconds plus the TAI-UTC offset in effect
// at that instant, so two Time values can be subtracted across a leap second
// without losing the inserted second.
package tai

import (
	"fmt"
	"time"
)

// Time is a point on the continuous time scale, in microseconds.
type Time int64

const (
	Microsecond Time = 1
	Millisecond Time = 1000 * Microsecond
	Second      Time = 1000 * Millisecond
)

// Date is a broken-down UTC calendar date. Sec is 60 during a leap second.
type Date struct {
	Year  int
	Month int
	Day   int
	Hour  int
	Min   int
	Sec   int
	Usec  int
	Yday  int
}

type leap struct {
	utc    int64 // POSIX second from which offset applies
	offset int64 // TAI-UTC in seconds
}

func at(year int, month time.Month, offset int64) leap {
	return leap{utc: time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Unix(), offset: offset}
}

// IERS Bulletin C. Append new entries when announced.
var leaps = []leap{
	at(1972, time.January, 10),
	at(1972, time.July, 11),
	at(1973, time.January, 12),
	at(1974, time.January, 13),
	at(1975, time.January, 14),
	at(1976, time.January, 15),
	at(1977, time.January, 16),
	at(1978, time.January, 17),
	at(1979, time.January, 18),
	at(1980, time.January, 19),
	at(1981, time.July, 20),
	at(1982, time.July, 21),
	at(1983, time.July, 22),
	at(1985, time.July, 23),
	at(1988, time.January, 24),
	at(1990, time.January, 25),
	at(1991, time.January, 26),
	at(1992, time.July, 27),
	at(1993, time.July, 28),
	at(1994, time.July, 29),
	at(1996, time.January, 30),
	at(1997, time.July, 31),
	at(1999, time.January, 32),
	at(2006, time.January, 33),
	at(2009, time.January, 34),
	at(2012, time.July, 35),
	at(2015, time.July, 36),
	at(2017, time.January, 37),
}

// offsetUTC returns TAI-UTC for a POSIX second.
func offsetUTC(sec int64) int64 {
	off := leaps[0].offset
	for _, l := range leaps {
		if sec < l.utc {
			break
		}
		off = l.offset
	}
	return off
}

// LeapOffset returns the cumulative TAI-UTC offset in seconds at t.
// During an inserted leap second the previous offset is still reported.
func LeapOffset(t Time) int64 {
	off := leaps[0].offset
	for _, l := range leaps {
		if int64(t) < (l.utc+l.offset)*int64(Second) {
			break
		}
		off = l.offset
	}
	return off
}

// FromUTC converts POSIX microseconds to a Time.
func FromUTC(usec int64) Time {
	return Time(usec + offsetUTC(FloorDiv(usec, int64(Second)))*int64(Second))
}

// UTC returns t as POSIX microseconds. A leap second maps onto the first
// second of the following day.
func (t Time) UTC() int64 {
	return int64(t) - LeapOffset(t)*int64(Second)
}

// FromDate converts a calendar date to a Time. Sec may be 60.
func FromDate(d Date) Time {
	sec, extra := d.Sec, int64(0)
	if sec == 60 {
		sec, extra = 59, 1
	}
	posix := time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Min, sec, 0, time.UTC).Unix()
	return Time((posix+extra+offsetUTC(posix))*int64(Second) + int64(d.Usec))
}

// Date converts t back to its calendar date, reporting Sec=60 inside a leap
// second.
func (t Time) Date() Date {
	off := LeapOffset(t)
	u := int64(t) - off*int64(Second)
	inLeap := offsetUTC(FloorDiv(u, int64(Second))) != off
	if inLeap {
		u -= int64(Second)
	}
	tm := time.UnixMicro(u).UTC()
	d := Date{
		Year:  tm.Year(),
		Month: int(tm.Month()),
		Day:   tm.Day(),
		Hour:  tm.Hour(),
		Min:   tm.Minute(),
		Sec:   tm.Second(),
		Usec:  tm.Nanosecond() / 1000,
		Yday:  tm.YearDay(),
	}
	if inLeap {
		d.Sec = 60
	}
	return d
}

func (t Time) String() string {
	d := t.Date()
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%06dZ",
		d.Year, d.Month, d.Day, d.Hour, d.Min, d.Sec, d.Usec)
}

// FloorDiv divides rounding towards negative infinity. b must be positive.
func FloorDiv(a, b int64) int64 {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}
