package tai

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidBCD reports a timestamp byte that is not two decimal digits or a
// field outside its calendar range.
var ErrInvalidBCD = errors.New("invalid BCD timestamp")

// BCD is the 6-byte binary-coded-decimal timestamp written by the recorder:
// year since 2000, month, day, hour, minute, second.
type BCD [6]byte

const (
	bcdYear = iota
	bcdMonth
	bcdDay
	bcdHour
	bcdMinute
	bcdSecond
)

func bcdDigits(b byte) (int, bool) {
	hi, lo := b>>4, b&0x0f
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return int(hi)*10 + int(lo), true
}

func toBCD(v int) byte {
	return byte(v/10)<<4 | byte(v%10)
}

// Valid reports whether every byte holds two decimal digits.
func (b BCD) Valid() bool {
	for _, x := range b {
		if _, ok := bcdDigits(x); !ok {
			return false
		}
	}
	return true
}

// IsZero reports whether the timestamp is all zero bytes.
func (b BCD) IsZero() bool {
	return b == BCD{}
}

// Date decodes the timestamp into calendar fields.
func (b BCD) Date() (Date, error) {
	var v [6]int
	for i, x := range b {
		n, ok := bcdDigits(x)
		if !ok {
			return Date{}, fmt.Errorf("%w: byte %d is 0x%02x", ErrInvalidBCD, i, x)
		}
		v[i] = n
	}
	d := Date{
		Year:  2000 + v[bcdYear],
		Month: v[bcdMonth],
		Day:   v[bcdDay],
		Hour:  v[bcdHour],
		Min:   v[bcdMinute],
		Sec:   v[bcdSecond],
	}
	if err := checkDate(d); err != nil {
		return Date{}, err
	}
	d.Yday = time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC).YearDay()
	return d, nil
}

// Time decodes the timestamp onto the continuous time scale.
func (b BCD) Time() (Time, error) {
	d, err := b.Date()
	if err != nil {
		return 0, err
	}
	return FromDate(d), nil
}

// NewBCD encodes a calendar date. Sub-second precision is dropped.
func NewBCD(d Date) (BCD, error) {
	if d.Year < 2000 || d.Year > 2099 {
		return BCD{}, fmt.Errorf("%w: year %d out of range", ErrInvalidBCD, d.Year)
	}
	if err := checkDate(d); err != nil {
		return BCD{}, err
	}
	var b BCD
	b[bcdYear] = toBCD(d.Year - 2000)
	b[bcdMonth] = toBCD(d.Month)
	b[bcdDay] = toBCD(d.Day)
	b[bcdHour] = toBCD(d.Hour)
	b[bcdMinute] = toBCD(d.Min)
	b[bcdSecond] = toBCD(d.Sec)
	return b, nil
}

func checkDate(d Date) error {
	if d.Month < 1 || d.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidBCD, d.Month)
	}
	days := time.Date(d.Year, time.Month(d.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if d.Day < 1 || d.Day > days {
		return fmt.Errorf("%w: day %d", ErrInvalidBCD, d.Day)
	}
	if d.Hour > 23 || d.Min > 59 || d.Sec > 60 {
		return fmt.Errorf("%w: time %02d:%02d:%02d", ErrInvalidBCD, d.Hour, d.Min, d.Sec)
	}
	return nil
}
