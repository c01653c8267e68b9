package writer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samcharles93/sixd6/pkg/tai"
)

// DefaultTemplate is the output path template used when none is given.
const DefaultTemplate = "out/%S/%y-%m-%d-%C.mseed"

// Identity holds the static record codes of one channel.
type Identity struct {
	Station  string
	Location string
	Channel  string
	Network  string
}

// Template is a parsed output path template. Placeholders:
//
//	%y year        %m month     %d day
//	%h hour        %i minute    %s second
//	%j day of year
//	%S station     %L location  %C channel  %N network
//	%% a literal percent sign
type Template struct {
	src   string
	parts []part
}

type part struct {
	lit  string
	verb byte
}

// ParseTemplate parses s, rejecting unknown placeholders.
func ParseTemplate(s string) (*Template, error) {
	t := &Template{src: s}
	var lit strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			lit.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return nil, fmt.Errorf("%w: %q ends with %%", ErrTemplate, s)
		}
		switch v := s[i]; v {
		case '%':
			lit.WriteByte('%')
		case 'y', 'm', 'd', 'h', 'i', 's', 'j', 'S', 'L', 'C', 'N':
			if lit.Len() > 0 {
				t.parts = append(t.parts, part{lit: lit.String()})
				lit.Reset()
			}
			t.parts = append(t.parts, part{verb: v})
		default:
			return nil, fmt.Errorf("%w: %q has unknown placeholder %%%c", ErrTemplate, s, v)
		}
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, part{lit: lit.String()})
	}
	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(s string) *Template {
	t, err := ParseTemplate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) String() string {
	return t.src
}

// Expand renders the template for a file opened at d.
func (t *Template) Expand(d tai.Date, id Identity) string {
	var b strings.Builder
	for _, p := range t.parts {
		switch p.verb {
		case 0:
			b.WriteString(p.lit)
		case 'y':
			pad(&b, d.Year, 4)
		case 'm':
			pad(&b, d.Month, 2)
		case 'd':
			pad(&b, d.Day, 2)
		case 'h':
			pad(&b, d.Hour, 2)
		case 'i':
			pad(&b, d.Min, 2)
		case 's':
			pad(&b, d.Sec, 2)
		case 'j':
			pad(&b, d.Yday, 3)
		case 'S':
			b.WriteString(id.Station)
		case 'L':
			b.WriteString(id.Location)
		case 'C':
			b.WriteString(id.Channel)
		case 'N':
			b.WriteString(id.Network)
		}
	}
	return b.String()
}

func pad(b *strings.Builder, v, width int) {
	s := strconv.Itoa(v)
	for range width - len(s) {
		b.WriteByte('0')
	}
	b.WriteString(s)
}
