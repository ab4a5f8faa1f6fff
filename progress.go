package main

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// progressBar redraws a single status line as pieces complete.
type progressBar struct {
	w     io.Writer
	name  string
	width int
	start time.Time
	bytes func(done int) int64
}

func newProgressBar(w io.Writer, name string, bytes func(done int) int64) *progressBar {
	return &progressBar{w: w, name: name, width: 30, start: time.Now(), bytes: bytes}
}

// update is called with the index of the piece just stored.
func (p *progressBar) update(index, total int) {
	done := index + 1
	percentage := 100.0
	if total > 0 {
		percentage = float64(done) * 100 / float64(total)
	}

	speed := 0.0
	if elapsed := time.Since(p.start).Seconds(); elapsed > 0 {
		speed = float64(p.bytes(done)) / elapsed / (1024 * 1024)
	}

	fmt.Fprint(p.w, "\r\033[K") // ANSI escape code to clear the line
	fmt.Fprintf(p.w, "%s %s %.1f%% %d/%d %.2f MB/s",
		p.name, bar(percentage, p.width), percentage, done, total, speed)

	if done == total {
		fmt.Fprintln(p.w)
	}
}

func bar(percentage float64, width int) string {
	completed := min(int(percentage*float64(width)/100), width)

	return "[" + strings.Repeat("=", completed) + strings.Repeat(" ", width-completed) + "]"
}
