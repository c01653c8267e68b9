package main

import (
	"fmt"
	"io"
)

// progressBar redraws one "percent size" status line.
type progressBar struct {
	w    io.Writer
	last int
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w, last: -1}
}

// update redraws the line when the percentage changed and ends it when done.
func (p *progressBar) update(percent int, bytes int64, done bool) {
	if percent != p.last || done {
		_, _ = fmt.Fprintf(p.w, "\r%3d%% %6.1f MB", percent, float64(bytes)/1e6)
		p.last = percent
	}
	if done {
		_, _ = fmt.Fprintln(p.w)
	}
}
